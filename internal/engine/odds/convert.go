package odds

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidOdds indica um preço que não pode ser convertido
// (zero no formato americano, ou decimal abaixo de 1.0)
var ErrInvalidOdds = errors.New("invalid odds")

// MinDecimal é o menor preço decimal aceito pelo modelo canônico
const MinDecimal = 1.01

// ToDecimal converte odds americanas para o formato decimal.
// +150 -> 2.50; -150 -> 1.667
func ToDecimal(american int) (float64, error) {
	if american == 0 {
		return 0, fmt.Errorf("american odds cannot be zero: %w", ErrInvalidOdds)
	}
	var dec float64
	if american > 0 {
		dec = float64(american)/100.0 + 1.0
	} else {
		dec = 100.0/math.Abs(float64(american)) + 1.0
	}
	if dec < 1.0 {
		return 0, fmt.Errorf("decimal %.4f below 1.0: %w", dec, ErrInvalidOdds)
	}
	if dec < MinDecimal {
		dec = MinDecimal
	}
	return dec, nil
}

// ToAmerican converte odds decimais para o formato americano.
// Inversa de ToDecimal dentro da tolerância de arredondamento.
func ToAmerican(decimal float64) (int, error) {
	if decimal < MinDecimal {
		return 0, fmt.Errorf("decimal %.4f below minimum: %w", decimal, ErrInvalidOdds)
	}
	if decimal >= 2.0 {
		return int(math.Round((decimal - 1.0) * 100.0)), nil
	}
	return -int(math.Round(100.0 / (decimal - 1.0))), nil
}
