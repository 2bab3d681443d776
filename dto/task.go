package dto

type CreateTaskRequest struct {
	TaskID           string
	OriginalFilename string
	UploadPath       string
	FileSizeBytes    int64
	FileHash         string
	UserIP           string
}

type TaskUploadResponse struct {
	TaskID    string `json:"task_id"`
	Status    string `json:"status"`
	Message   string `json:"message"`
	CreatedAt string `json:"created_at"`
}

type TaskResponse struct {
	TaskID           string  `json:"task_id"`
	Status           string  `json:"status"`
	CreatedAt        string  `json:"created_at"`
	StartedAt        *string `json:"started_at,omitempty"`
	CompletedAt      *string `json:"completed_at,omitempty"`
	OriginalFilename string  `json:"original_filename,omitempty"`
	FileSizeBytes    int64   `json:"file_size_bytes,omitempty"`
	ExportPath       string  `json:"export_path,omitempty"`
	ExportSizeBytes  int64   `json:"export_size_bytes,omitempty"`
	ErrorMessage     string  `json:"error_message,omitempty"`
}

type HealthResponse struct {
	Status        string `json:"status"`
	RipperStatus  string `json:"ripper_status"`
	QueueDepth    int    `json:"queue_depth"`
	CurrentTask   string `json:"current_task,omitempty"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}
