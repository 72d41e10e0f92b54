package protocol

const (
	// TagError introduces an error response.
	TagError byte = 0x00
	// TagSuccess introduces a success response.
	TagSuccess byte = 0x01

	// MaxResponseBodySize bounds the JSON metadata and error frames.
	MaxResponseBodySize = 64 * 1024

	statusSuccess = "success"
)

// SuccessMetadata describes the output file that follows a success tag.
type SuccessMetadata struct {
	Status        string `json:"status"`
	FileExtension string `json:"file_extension"`
	FileSize      int64  `json:"file_size"`
}

// ErrorBody is the structured error that follows an error tag.
type ErrorBody struct {
	ErrorCode   string `json:"error_code"`
	Description string `json:"description"`
	Remedy      string `json:"remedy"`
}

func (e *ErrorBody) Error() string {
	return "server returned error " + e.ErrorCode + ": " + e.Description
}

// Response is exactly one of Success or Error.
type Response struct {
	Success *SuccessMetadata
	Error   *ErrorBody
}
