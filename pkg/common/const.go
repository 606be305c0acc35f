package common

// Cache key formats.
const (
	KEY_ORCHESTRATION_STATUS = "adr_orchestration_status:%s"
	KEY_CREDENTIAL_RESULT    = "adr_credential:%s"
)

// Actors recorded in TriggeredBy / CancelledBy when no user is involved.
const (
	ACTOR_SCHEDULER = "scheduler"
	ACTOR_RECOVERY  = "recovery"
	ACTOR_SYSTEM    = "system"
	ACTOR_API       = "api"
)

const SYSTEM_TENANT = "system"
