package topics

const (
	// Kafka
	OddsChanges = "odds_changes"

	// Redis Pub/Sub
	OddsChangesBroadcast = "odds_changes_broadcast"
)
