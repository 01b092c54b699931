package protocol

import "strings"

// Actions accepted on the input stream.
const (
	ActionUpload          = "upload"
	ActionHTTPUpload      = "http_upload"
	ActionGenerateThumb   = "generate_thumb"
	ActionCreateGallery   = "create_gallery"
	ActionFinalizeGallery = "finalize_gallery"
	ActionVerify          = "verify"
	ActionLogin           = "login"
	ActionListGalleries   = "list_galleries"
)

// Event types written to the output stream.
const (
	EventLog           = "log"
	EventStatus        = "status"
	EventProgress      = "progress"
	EventResult        = "result"
	EventError         = "error"
	EventBatchComplete = "batch_complete"
	EventData          = "data"
)

// Per-file status values carried by status events.
const (
	StatusProcessing = "Processing"
	StatusUploading  = "Uploading"
	StatusDone       = "Done"
	StatusFailed     = "Failed"
	StatusTimeout    = "Timeout"
	StatusSuccess    = "success"
	StatusBatchDone  = "done"
)

// Job is one request from the host. It is never mutated after decode.
type Job struct {
	JobID       string            `json:"job_id,omitempty"`
	Action      string            `json:"action"`
	Service     string            `json:"service"`
	Files       []string          `json:"files"`
	Creds       map[string]string `json:"creds,omitempty"`
	Config      map[string]string `json:"config,omitempty"`
	ContextData map[string]string `json:"context_data,omitempty"`
	HTTPSpec    *HTTPSpec         `json:"http_spec,omitempty"`
}

// NormalizedAction returns the action lower-cased with login folded into verify.
func (j *Job) NormalizedAction() string {
	a := strings.ToLower(strings.TrimSpace(j.Action))
	if a == ActionLogin {
		return ActionVerify
	}
	return a
}

// ConfigValue returns the config entry for key, or "" when absent.
func (j *Job) ConfigValue(key string) string {
	if j.Config == nil {
		return ""
	}
	return j.Config[key]
}

// Cred returns the credential entry for key, or "" when absent.
func (j *Job) Cred(key string) string {
	if j.Creds == nil {
		return ""
	}
	return j.Creds[key]
}

// Multipart field types understood by the generic HTTP runner.
const (
	FieldFile     = "file"
	FieldText     = "text"
	FieldTemplate = "template"
	FieldDynamic  = "dynamic"
)

// HTTPSpec is a declarative description of one upload request.
type HTTPSpec struct {
	URL             string                    `json:"url"`
	Method          string                    `json:"method,omitempty"`
	Headers         map[string]string         `json:"headers,omitempty"`
	MultipartFields map[string]MultipartField `json:"multipart_fields,omitempty"`
	FormFields      map[string]string         `json:"form_fields,omitempty"`
	PreRequest      *PreRequest               `json:"pre_request,omitempty"`
	ResponseParser  ResponseParser            `json:"response_parser"`
}

// MultipartField describes one part of the upload body.
type MultipartField struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// PreRequest is one step of a login or token discovery chain that runs
// before the upload. Values it extracts feed templates and dynamic fields.
type PreRequest struct {
	Action          string            `json:"action,omitempty"`
	URL             string            `json:"url"`
	Method          string            `json:"method,omitempty"`
	Headers         map[string]string `json:"headers,omitempty"`
	FormFields      map[string]string `json:"form_fields,omitempty"`
	UseCookies      bool              `json:"use_cookies,omitempty"`
	ExtractFields   map[string]string `json:"extract_fields,omitempty"`
	ResponseType    string            `json:"response_type,omitempty"` // json | html
	FollowUpRequest *PreRequest       `json:"follow_up_request,omitempty"`
}

// ResponseParser tells the generic runner where the URLs live in the
// upload response.
type ResponseParser struct {
	Type          string `json:"type,omitempty"` // json | html
	URLPath       string `json:"url_path,omitempty"`
	ThumbPath     string `json:"thumb_path,omitempty"`
	StatusPath    string `json:"status_path,omitempty"`
	SuccessValue  string `json:"success_value,omitempty"`
	URLTemplate   string `json:"url_template,omitempty"`
	ThumbTemplate string `json:"thumb_template,omitempty"`
}

// Event is one outbound record.
type Event struct {
	Type     string `json:"type"`
	JobID    string `json:"job_id,omitempty"`
	FilePath string `json:"file_path,omitempty"`
	// File mirrors FilePath for hosts that read the older key.
	File   string `json:"file,omitempty"`
	Status string `json:"status,omitempty"`
	URL    string `json:"url,omitempty"`
	Thumb  string `json:"thumb,omitempty"`
	Msg    string `json:"msg,omitempty"`
	Level  string `json:"level,omitempty"`
	Data   any    `json:"data,omitempty"`
}

// StatusEvent reports a per-file state transition.
func StatusEvent(jobID, file, status string) Event {
	return Event{Type: EventStatus, JobID: jobID, FilePath: file, File: file, Status: status}
}

// ResultEvent is the successful terminal event for one file.
func ResultEvent(jobID, file, url, thumb string, data any) Event {
	return Event{Type: EventResult, JobID: jobID, FilePath: file, File: file, URL: url, Thumb: thumb, Data: data}
}

// ErrorEvent is the failed terminal event for one file, or a job-level
// failure when file is empty.
func ErrorEvent(jobID, file, msg string) Event {
	return Event{Type: EventError, JobID: jobID, FilePath: file, File: file, Msg: msg}
}

// BatchComplete closes a job.
func BatchComplete(jobID string) Event {
	return Event{Type: EventBatchComplete, JobID: jobID, Status: StatusBatchDone}
}

// DataEvent carries structured output such as gallery listings or thumbnails.
func DataEvent(jobID, file string, data any) Event {
	return Event{Type: EventData, JobID: jobID, FilePath: file, File: file, Status: StatusSuccess, Data: data}
}

// ProgressEvent reports bytes sent for one file.
func ProgressEvent(jobID, file string, sent, total int64) Event {
	return Event{
		Type:     EventProgress,
		JobID:    jobID,
		FilePath: file,
		File:     file,
		Data:     map[string]int64{"sent": sent, "total": total},
	}
}

// LogEvent routes a diagnostic line through the event stream.
func LogEvent(level, msg string, attrs map[string]any) Event {
	ev := Event{Type: EventLog, Level: level, Msg: msg}
	if len(attrs) > 0 {
		ev.Data = attrs
	}
	return ev
}

// IsTerminal reports whether the event ends processing of one file.
func (e Event) IsTerminal() bool {
	return e.FilePath != "" && (e.Type == EventResult || e.Type == EventError ||
		(e.Type == EventData && e.Status == StatusSuccess))
}
