package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// TaskResponse — task из API.
type TaskResponse struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Status    string         `json:"status"`
	Payload   map[string]any `json:"payload"`
	Result    map[string]any `json:"result,omitempty"`
	LastError string         `json:"last_error,omitempty"`
	CreatedAt string         `json:"created_at"`
	UpdatedAt string         `json:"updated_at"`
}

// ArtifactResponse — метаданные artifact из API.
type ArtifactResponse struct {
	ID          string `json:"id"`
	TaskID      string `json:"task_id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type,omitempty"`
	SizeBytes   int64  `json:"size_bytes"`
	SHA256      string `json:"sha256"`
	CreatedAt   string `json:"created_at"`
}

// SyncStatusResponse — состояние цикла redeem-sync.
type SyncStatusResponse struct {
	Running   bool   `json:"running"`
	StartedAt string `json:"started_at,omitempty"`
	EndAt     string `json:"end_at,omitempty"`
	LastRunAt string `json:"last_run_at,omitempty"`
	LastError string `json:"last_error,omitempty"`
	Runs      int    `json:"runs"`
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для TaskBridge API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

// --- Tasks ---

// ListTasks возвращает все tasks.
func (c *Client) ListTasks() ([]TaskResponse, error) {
	var tasks []TaskResponse
	err := c.list("/api/v1/tasks", nil, &tasks)
	return tasks, err
}

// CreateTask создаёт task.
func (c *Client) CreateTask(taskType string, payload map[string]any) (*TaskResponse, error) {
	body := map[string]any{"type": taskType, "payload": payload}
	var task TaskResponse
	err := c.post("/api/v1/tasks", body, &task)
	return &task, err
}

// GetTask возвращает task по ID.
func (c *Client) GetTask(id string) (*TaskResponse, error) {
	var task TaskResponse
	err := c.get("/api/v1/tasks/"+url.PathEscape(id), &task)
	return &task, err
}

// ClaimTask забирает следующую task типа. ok=false — очередь пуста.
func (c *Client) ClaimTask(taskType string) (*TaskResponse, bool, error) {
	params := url.Values{}
	params.Set("type", taskType)

	var task TaskResponse
	status, err := c.doDataStatus(http.MethodGet, "/api/v1/tasks/next?"+params.Encode(), nil, &task)
	if err != nil {
		return nil, false, err
	}
	if status == http.StatusNoContent {
		return nil, false, nil
	}
	return &task, true, nil
}

// CompleteTask сообщает об успешном выполнении.
func (c *Client) CompleteTask(id string, result map[string]any) (*TaskResponse, error) {
	body := map[string]any{"result": result}
	var task TaskResponse
	err := c.post("/api/v1/tasks/"+url.PathEscape(id)+"/complete", body, &task)
	return &task, err
}

// FailTask сообщает об ошибке. result может быть nil.
func (c *Client) FailTask(id, errMsg string, result map[string]any) (*TaskResponse, error) {
	body := map[string]any{"error": errMsg}
	if result != nil {
		body["result"] = result
	}
	var task TaskResponse
	err := c.post("/api/v1/tasks/"+url.PathEscape(id)+"/fail", body, &task)
	return &task, err
}

// DeleteTask удаляет task вместе с artifacts.
func (c *Client) DeleteTask(id string) error {
	return c.delete("/api/v1/tasks/" + url.PathEscape(id))
}

// --- Artifacts ---

// UploadArtifact загружает содержимое r как artifact task.
// Тело отправляется потоком через multipart.
func (c *Client) UploadArtifact(taskID, filename string, r io.Reader) (*ArtifactResponse, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		part, err := mw.CreateFormFile("file", filename)
		if err == nil {
			_, err = io.Copy(part, r)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/api/v1/tasks/"+url.PathEscape(taskID)+"/artifacts", pr)
	if err != nil {
		pr.Close()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return nil, err
	}

	var a ArtifactResponse
	if err := decodeData(resp.Body, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// ListArtifacts возвращает artifacts task.
func (c *Client) ListArtifacts(taskID string) ([]ArtifactResponse, error) {
	var artifacts []ArtifactResponse
	err := c.list("/api/v1/tasks/"+url.PathEscape(taskID)+"/artifacts", nil, &artifacts)
	return artifacts, err
}

// DownloadArtifact пишет содержимое artifact в w и возвращает имя файла
// из Content-Disposition.
func (c *Client) DownloadArtifact(id string, w io.Writer) (string, error) {
	resp, err := c.do(http.MethodGet, "/api/v1/artifacts/"+url.PathEscape(id), nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return "", err
	}

	var filename string
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		filename = params["filename"]
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		return filename, fmt.Errorf("failed to read content: %w", err)
	}
	return filename, nil
}

// --- Redeem sync ---

// SyncStatus возвращает состояние цикла.
func (c *Client) SyncStatus() (*SyncStatusResponse, error) {
	var st SyncStatusResponse
	err := c.get("/api/v1/redeem-sync/status", &st)
	return &st, err
}

// StartSync запускает цикл на duration (0 — по умолчанию сервера).
func (c *Client) StartSync(duration time.Duration) (*SyncStatusResponse, error) {
	path := "/api/v1/redeem-sync/start"
	if duration > 0 {
		path += "?duration=" + url.QueryEscape(duration.String())
	}
	var st SyncStatusResponse
	err := c.post(path, nil, &st)
	return &st, err
}

// StopSync останавливает цикл.
func (c *Client) StopSync() (*SyncStatusResponse, error) {
	var st SyncStatusResponse
	err := c.post("/api/v1/redeem-sync/stop", nil, &st)
	return &st, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	_, err := c.doDataStatus(http.MethodGet, path, nil, result)
	return err
}

func (c *Client) post(path string, body any, result any) error {
	_, err := c.doDataStatus(http.MethodPost, path, body, result)
	return err
}

func (c *Client) delete(path string) error {
	resp, err := c.do(http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.checkError(resp)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return unmarshalNumbers(lr.Data, result)
}

// doDataStatus выполняет запрос и разбирает {"data": ...}.
// Для 204 result не трогается.
func (c *Client) doDataStatus(method, path string, body any, result any) (int, error) {
	resp, err := c.do(method, path, body)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return resp.StatusCode, err
	}
	if resp.StatusCode == http.StatusNoContent {
		return resp.StatusCode, nil
	}
	if result == nil {
		return resp.StatusCode, nil
	}
	return resp.StatusCode, decodeData(resp.Body, result)
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil || er.Error.Code == "" {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}

func decodeData(r io.Reader, result any) error {
	var dr dataResponse
	if err := json.NewDecoder(r).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return unmarshalNumbers(dr.Data, result)
}

// unmarshalNumbers — json.Unmarshal с сохранением чисел как json.Number.
func unmarshalNumbers(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}
