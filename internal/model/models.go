// FILE: internal/model/models.go
package model

// All lists every table owned by the gateway, in migration order.
func All() []interface{} {
	return []interface{}{
		&User{},
		&BannedUser{},
		&Conversation{},
		&UserGeneration{},
		&CommandUsage{},
		&ModelUsage{},
		&ErrorCount{},
		&ResponseTime{},
		&MetricFlush{},
		&UserData{},
	}
}
