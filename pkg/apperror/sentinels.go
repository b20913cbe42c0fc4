package apperror

var (
	ErrUnsupportedType   = New(KindInput, "unsupported_type", "unsupported file type")
	ErrFileTooLarge      = New(KindInput, "file_too_large", "file exceeds the upload size limit")
	ErrEmptyFile         = New(KindInput, "empty_file", "file is empty")
	ErrCorruptContent    = New(KindInput, "corrupt_content", "file content could not be read")
	ErrNoTextContent     = New(KindInput, "no_text_content", "no text could be extracted from the file")
	ErrEmptyQuery        = New(KindInput, "empty_query", "query must not be empty")
	ErrQueryTooLong      = New(KindInput, "query_too_long", "query exceeds the maximum length")
	ErrInvalidRagConfig  = New(KindInput, "invalid_rag_config", "invalid rag configuration")
	ErrUnknownAlgorithm  = New(KindInput, "unknown_algorithm", "unknown algorithm")
	ErrInvalidChoice     = New(KindInput, "invalid_continuation", "invalid continuation choice")
	ErrDimensionMismatch = New(KindInput, "dimension_mismatch", "embedding dimension does not match the workspace configuration")

	ErrWorkspaceNotFound = New(KindNotFound, "workspace_not_found", "workspace not found")
	ErrDocumentNotFound  = New(KindNotFound, "document_not_found", "document not found")
	ErrSessionNotFound   = New(KindNotFound, "session_not_found", "chat session not found")
	ErrTurnNotFound      = New(KindNotFound, "turn_not_found", "chat turn not found")

	ErrWorkspaceNotReady     = New(KindConflict, "workspace_not_ready", "workspace is not ready")
	ErrWorkspaceDeleting     = New(KindConflict, "workspace_deleting", "workspace is being deleted")
	ErrDocumentBusy          = New(KindConflict, "document_busy", "document is still being processed")
	ErrInvalidTransition     = New(KindConflict, "invalid_status_transition", "invalid status transition")
	ErrTurnInProgress        = New(KindConflict, "turn_in_progress", "a turn is already in progress for this session")
	ErrTurnNotAwaitingChoice = New(KindConflict, "turn_not_awaiting_choice", "turn is not waiting for a continuation choice")

	ErrConfigImmutable     = New(KindPolicy, "config_immutable", "rag configuration is read-only after provisioning")
	ErrForbidden           = New(KindPolicy, "forbidden", "access to this resource is not allowed")
	ErrRetrieverNotEnabled = New(KindPolicy, "retriever_not_enabled", "retriever type is not enabled in this deployment")

	ErrIndexUnavailable     = New(KindTransient, "index_unavailable", "vector index is unavailable")
	ErrEmbeddingUnavailable = New(KindTransient, "embedding_unavailable", "embedding backend is unavailable")
	ErrGenerationFailed     = New(KindTransient, "generation_failed", "generation backend failed")
	ErrQueueUnavailable     = New(KindTransient, "queue_unavailable", "work queue is unavailable")
	ErrExternalUnavailable  = New(KindTransient, "external_unavailable", "external lookup failed")

	ErrTenantIsolation = New(KindTenantIsolation, "tenant_isolation", "result does not belong to the requested workspace")
)
