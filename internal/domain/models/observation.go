package models

import "time"

// ObservationRecord is one time step of evidence entering the engine.
// Values maps observed node ids to labels; nodes absent from the map carry
// no evidence for that step.
type ObservationRecord struct {
	Symbol    string
	Timestamp time.Time
	Values    map[string]string
}
