package utils

// ApiResponse is the envelope every endpoint answers with.
type ApiResponse struct {
	StatusCode int         `json:"statusCode"`
	Data       interface{} `json:"data"`
	Message    string      `json:"message"`
	Success    bool        `json:"success"`
	Code       string      `json:"code,omitempty"`
}

func NewApiResponse(status int, data interface{}, message string) ApiResponse {
	return ApiResponse{
		StatusCode: status,
		Data:       data,
		Message:    message,
		Success:    status < 400,
	}
}

// ErrorResponse builds the failure envelope for an ApiError.
func ErrorResponse(err *ApiError) ApiResponse {
	return ApiResponse{
		StatusCode: err.StatusCode,
		Data:       nil,
		Message:    err.Message,
		Success:    false,
		Code:       err.Code,
	}
}
