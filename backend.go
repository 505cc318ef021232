package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// ===============================
// 上传后端客户端
// ===============================

// BackendClient 负责登录和上传，探测本身不经过这里也不携带凭据
type BackendClient struct {
	baseURL string
	client  *http.Client
}

// NewBackendClient 创建后端客户端
func NewBackendClient(baseURL string, client *http.Client) *BackendClient {
	return &BackendClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

// Login 使用用户名密码换取 token
func (b *BackendClient) Login(ctx context.Context, username, password string) (string, error) {
	body, err := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/api/login", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("创建登录请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var out struct {
		Token string `json:"token"`
	}
	if err := b.do(req, &out); err != nil {
		return "", fmt.Errorf("登录失败: %w", err)
	}
	if out.Token == "" {
		return "", errors.New("登录失败: 响应中没有 token")
	}
	return out.Token, nil
}

// Upload 上传图片，返回后端生成的规范文件名
func (b *BackendClient) Upload(ctx context.Context, token, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("打开文件失败: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", filepath.Base(path))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("读取文件失败: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/upload", &buf)
	if err != nil {
		return "", fmt.Errorf("创建上传请求失败: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	var out struct {
		Filename string `json:"filename"`
	}
	if err := b.do(req, &out); err != nil {
		return "", fmt.Errorf("上传失败: %w", err)
	}
	if out.Filename == "" {
		return "", errors.New("上传失败: 响应中没有 filename")
	}
	return out.Filename, nil
}

func (b *BackendClient) do(req *http.Request, out interface{}) error {
	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("状态码 %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
