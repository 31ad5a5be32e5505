package cli

const (
	TimestampHuman  = "2 Jan 2006 3:04:05 PM"
	TimestampSystem = "2006-01-02T15:04:05"
)

const (
	FlagTypeBool        FlagType = "bool"
	FlagTypeDuration    FlagType = "duration"
	FlagTypeFloat       FlagType = "float"
	FlagTypeInteger     FlagType = "integer"
	FlagTypeString      FlagType = "string"
	FlagTypeStringSlice FlagType = "stringslice"
)
