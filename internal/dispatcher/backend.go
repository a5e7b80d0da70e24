package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// callError — классифицированная ошибка вызова backend.
//
// retryable=true для транспортных ошибок и HTTP 5xx (повтор может
// помочь), false для HTTP 4xx (запрос отвергнут, повтор бессмыслен).
type callError struct {
	message   string
	retryable bool
	raw       []byte
}

func (e *callError) Error() string { return e.message }

func (e *callError) Unwrap() error { return ErrBackendCallFailed }

// BackendCaller выполняет HTTP-вызовы backend-сервисов.
//
// Операция — часть пути: POST {base}/{operation} с JSON payload.
// Ответ парсится как JSON-объект; не-объектный JSON заворачивается
// в поле "result", не-JSON — в "raw".
type BackendCaller struct {
	client *http.Client
}

// NewBackendCaller создаёт caller с общим http.Client.
// Таймаут задаётся per-call через контекст.
func NewBackendCaller() *BackendCaller {
	return &BackendCaller{
		client: &http.Client{},
	}
}

// Call выполняет один вызов операции backend-сервиса.
//
// Возвращает нормализованный ответ и сырое тело. Ошибка всегда
// оборачивает ErrBackendCallFailed; ретраебельность проверяется
// через isRetryableCall.
func (c *BackendCaller) Call(ctx context.Context, baseURL, operation string, payload map[string]any) (map[string]any, []byte, error) {
	url := strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(operation, "/")

	var bodyReader io.Reader
	if payload != nil {
		bodyBytes, err := json.Marshal(payload)
		if err != nil {
			return nil, nil, &callError{
				message:   fmt.Sprintf("marshal payload: %v", err),
				retryable: false,
			}
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bodyReader)
	if err != nil {
		return nil, nil, &callError{
			message:   fmt.Sprintf("create request: %v", err),
			retryable: false,
		}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		// Транспортная ошибка или отмена контекста
		return nil, nil, &callError{
			message:   err.Error(),
			retryable: ctx.Err() == nil,
		}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, &callError{
			message:   fmt.Sprintf("read response: %v", err),
			retryable: true,
		}
	}

	if resp.StatusCode >= 400 {
		return nil, raw, &callError{
			message:   fmt.Sprintf("HTTP %d: %s", resp.StatusCode, truncate(string(raw), 200)),
			retryable: resp.StatusCode >= 500,
			raw:       raw,
		}
	}

	return parseOutput(raw), raw, nil
}

// parseOutput нормализует тело ответа в map.
func parseOutput(raw []byte) map[string]any {
	if len(raw) == 0 {
		return map[string]any{}
	}

	var asMap map[string]any
	if err := json.Unmarshal(raw, &asMap); err == nil {
		return asMap
	}

	var asAny any
	if err := json.Unmarshal(raw, &asAny); err == nil {
		return map[string]any{"result": asAny}
	}

	return map[string]any{"raw": string(raw)}
}

// isRetryableCall сообщает, имеет ли смысл повтор вызова.
func isRetryableCall(err error) bool {
	var ce *callError
	if errors.As(err, &ce) {
		return ce.retryable
	}
	return false
}

// callErrorRaw возвращает сырое тело из ошибки вызова (если было).
func callErrorRaw(err error) []byte {
	var ce *callError
	if errors.As(err, &ce) {
		return ce.raw
	}
	return nil
}

// truncate обрезает строку до указанной длины.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
