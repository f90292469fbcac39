package db

import "genaiops/internal/config"

func ProcessingTableName() string {
	return config.String("PROCESSING_TABLE", "")
}

func DedupeTableName() string {
	return config.String("DEDUPE_TABLE", "")
}

func ConversationTableName() string {
	return config.String("CONVERSATION_TABLE", "")
}

func FeedbackTableName() string {
	return config.String("FEEDBACK_TABLE", "")
}

func PromptTableName() string {
	return config.String("PROMPT_TABLE", "")
}

func ResponseCacheTableName() string {
	return config.String("RESPONSE_CACHE_TABLE", "")
}

func AuditTrailTableName() string {
	return config.String("AUDIT_TRAIL_TABLE", "")
}
