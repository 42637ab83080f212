package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/letsssgooo/quizResults/internal/auth"
	"github.com/letsssgooo/quizResults/internal/domain/models"
)

// headerSignature — заголовок с подписью заявки.
const headerSignature = "X-Signature"

// HTTPClient реализует Client через HTTP API сервиса.
type HTTPClient struct {
	baseURL    string
	signer     Signer
	httpClient *http.Client
}

// NewHTTPClient создаёт клиента сервиса по адресу baseURL.
// signer нужен только для SaveTestResult.
func NewHTTPClient(baseURL string, signer Signer) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		signer:     signer,
		httpClient: &http.Client{},
	}
}

// SaveTestResult подписывает и отправляет результат теста.
// vk_user_id заполняется значением UserID.
// Возвращает *APIError, если сервис отклонил заявку.
func (c *HTTPClient) SaveTestResult(ctx context.Context, req SubmitRequest) error {
	if c.signer == nil {
		return errors.New("client has no signer")
	}

	params := make(map[string]interface{}, len(req.Launch)+5)
	for name, value := range req.Launch {
		params[name] = value
	}

	params["user_id"] = req.UserID
	params["test_id"] = req.TestID
	params["score"] = req.Score
	params["totalQuestions"] = req.TotalQuestions
	params["vk_user_id"] = req.UserID

	body, err := json.Marshal(params)
	if err != nil {
		return err
	}

	signature := c.signer.Sign(auth.Params{
		UserID: strconv.FormatInt(req.UserID, 10),
		TestID: strconv.FormatInt(req.TestID, 10),
		Score:  strconv.Itoa(req.Score),
	})

	ctx, cancelFunc := context.WithTimeout(ctx, timeoutSend)
	defer cancelFunc()

	var result struct {
		Success bool `json:"success"`
	}

	header := http.Header{}
	header.Set(headerSignature, signature)

	if err = c.doRequest(ctx, http.MethodPost, "/save-test-result", nil, header, body, &result); err != nil {
		return err
	}

	if !result.Success {
		return errors.New("client api error: submission was not confirmed")
	}

	return nil
}

// Tests возвращает результаты пользователя userID.
func (c *HTTPClient) Tests(ctx context.Context, userID int64) ([]models.UserTest, error) {
	ctx, cancelFunc := context.WithTimeout(ctx, timeoutRead)
	defer cancelFunc()

	var tests []models.UserTest
	if err := c.doRequest(ctx, http.MethodGet, "/tests", userQuery(userID), nil, nil, &tests); err != nil {
		return nil, err
	}

	return tests, nil
}

// TestsCount возвращает количество пройденных пользователем userID тестов.
func (c *HTTPClient) TestsCount(ctx context.Context, userID int64) (int, error) {
	ctx, cancelFunc := context.WithTimeout(ctx, timeoutRead)
	defer cancelFunc()

	var result struct {
		TestsCount int `json:"tests_count"`
	}

	if err := c.doRequest(ctx, http.MethodGet, "/api/user-tests-count", userQuery(userID), nil, nil, &result); err != nil {
		return 0, err
	}

	return result.TestsCount, nil
}

// TopUsers возвращает рейтинг пользователей.
// До первого обновления кэша сервис отвечает *APIError с кодом 500.
func (c *HTTPClient) TopUsers(ctx context.Context) ([]models.TopUser, error) {
	ctx, cancelFunc := context.WithTimeout(ctx, timeoutRead)
	defer cancelFunc()

	var users []models.TopUser
	if err := c.doRequest(ctx, http.MethodGet, "/api/topusers", nil, nil, nil, &users); err != nil {
		return nil, err
	}

	return users, nil
}

// Leaderboard возвращает таблицу лидеров.
func (c *HTTPClient) Leaderboard(ctx context.Context) ([]models.LeaderboardEntry, error) {
	ctx, cancelFunc := context.WithTimeout(ctx, timeoutRead)
	defer cancelFunc()

	var entries []models.LeaderboardEntry
	if err := c.doRequest(ctx, http.MethodGet, "/leaderboard", nil, nil, nil, &entries); err != nil {
		return nil, err
	}

	return entries, nil
}

// doRequest выполняет запрос к сервису и декодирует ответ в out.
// Ответ с кодом не 2xx превращается в *APIError.
func (c *HTTPClient) doRequest(
	ctx context.Context,
	method string,
	path string,
	query url.Values,
	header http.Header,
	body []byte,
	out interface{},
) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	request, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return err
	}

	for name, values := range header {
		request.Header[name] = values
	}

	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("failed to do %s request for %s: %w", method, path, err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body for %s: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var result struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(data, &result)

		if result.Error == "" {
			result.Error = http.StatusText(resp.StatusCode)
		}

		return &APIError{StatusCode: resp.StatusCode, Message: result.Error}
	}

	if err = json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response for %s: %w", path, err)
	}

	return nil
}

func userQuery(userID int64) url.Values {
	return url.Values{"user_id": []string{strconv.FormatInt(userID, 10)}}
}
