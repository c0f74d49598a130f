// Package cloudrpc generalizes the teacher's Baidu PCS client
// (internal/fs/baidu) into a provider-neutral HTTP client: the same
// precreate -> upload-slice -> create flow, the same token-refresh and
// request() helper, but addressed through an Endpoints table instead of
// hardcoded Baidu URLs, so a second provider can be dropped in by
// supplying a different Endpoints value rather than a second client
// implementation.
package cloudrpc

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// BlockSize is the slice size used by the superfile2-style chunked
// upload flow, matching the teacher's 4MiB blocks.
const BlockSize = 4 * 1024 * 1024

// Endpoints names the four URLs a provider needs; a second backend is
// wired in by constructing a different Endpoints value, never by
// touching Client's methods.
type Endpoints struct {
	OAuthURL    string
	FileURL     string
	UploadURL   string
	SuperfileURL string
}

// BaiduEndpoints reproduces the teacher's hardcoded URLs as the default
// provider.
var BaiduEndpoints = Endpoints{
	OAuthURL:     "https://openapi.baidu.com/oauth/2.0/token",
	FileURL:      "https://pan.baidu.com/rest/2.0/xpan/file",
	UploadURL:    "https://d.pcs.baidu.com/rest/2.0/pcs/file",
	SuperfileURL: "https://pcs.baidu.com/rest/2.0/pcs/superfile2",
}

// Credentials carries the OAuth token pair and app identity used to
// authenticate every request.
type Credentials struct {
	AppKey       string
	SecretKey    string
	AccessToken  string
	RefreshToken string
	UserAgent    string
}

// Client is the provider-neutral cloud RPC client.
type Client struct {
	creds      Credentials
	endpoints  Endpoints
	httpClient *http.Client
}

// New constructs a Client. If endpoints is the zero value, BaiduEndpoints
// is used.
func New(creds Credentials, endpoints Endpoints) *Client {
	if creds.UserAgent == "" {
		creds.UserAgent = "cloudsync-client"
	}
	if endpoints == (Endpoints{}) {
		endpoints = BaiduEndpoints
	}
	return &Client{
		creds:     creds,
		endpoints: endpoints,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// RemoteEntry is one listed cloud directory entry.
type RemoteEntry struct {
	Handle uint64
	Name   string
	Size   int64
	MTime  time.Time
	IsDir  bool
	MD5    string
}

// RefreshAccessToken exchanges the stored refresh token for a fresh
// access/refresh token pair, mutating the client's credentials in place.
func (c *Client) RefreshAccessToken(ctx context.Context) error {
	params := url.Values{}
	params.Set("grant_type", "refresh_token")
	params.Set("refresh_token", c.creds.RefreshToken)
	params.Set("client_id", c.creds.AppKey)
	params.Set("client_secret", c.creds.SecretKey)

	req, err := http.NewRequestWithContext(ctx, "GET", c.endpoints.OAuthURL+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("refresh token request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	var errResp struct {
		Error string `json:"error"`
		Desc  string `json:"error_description"`
	}
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
		return fmt.Errorf("refresh token failed: %s - %s", errResp.Error, errResp.Desc)
	}

	var auth struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.Unmarshal(body, &auth); err != nil {
		return fmt.Errorf("parse token response: %w", err)
	}

	c.creds.AccessToken = auth.AccessToken
	c.creds.RefreshToken = auth.RefreshToken
	return nil
}

type pcsResponse struct {
	ErrNo int    `json:"errno"`
	Msg   string `json:"errmsg"`
}

func (r pcsResponse) isSuccess() bool { return r.ErrNo == 0 }

// ListDir lists the contents of remotePath.
func (c *Client) ListDir(ctx context.Context, remotePath string) ([]RemoteEntry, error) {
	params := url.Values{}
	params.Set("method", "list")
	params.Set("dir", remotePath)
	params.Set("limit", "1000")

	body, err := c.request(ctx, "GET", c.endpoints.FileURL, params, nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		pcsResponse
		List []struct {
			FsID        uint64 `json:"fs_id"`
			ServerName  string `json:"server_filename"`
			Size        int64  `json:"size"`
			ServerMTime int64  `json:"server_mtime"`
			IsDir       int    `json:"isdir"`
			MD5         string `json:"md5"`
		} `json:"list"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	if !resp.isSuccess() {
		return nil, fmt.Errorf("cloudrpc: list error %d %s", resp.ErrNo, resp.Msg)
	}

	out := make([]RemoteEntry, 0, len(resp.List))
	for _, f := range resp.List {
		out = append(out, RemoteEntry{
			Handle: f.FsID,
			Name:   f.ServerName,
			Size:   f.Size,
			MTime:  time.Unix(f.ServerMTime, 0),
			IsDir:  f.IsDir == 1,
			MD5:    f.MD5,
		})
	}
	return out, nil
}

// Download opens a read stream for remotePath. Caller must Close it.
func (c *Client) Download(ctx context.Context, remotePath string) (io.ReadCloser, error) {
	params := url.Values{}
	params.Set("method", "download")
	params.Set("path", remotePath)
	params.Set("access_token", c.creds.AccessToken)

	req, err := http.NewRequestWithContext(ctx, "GET", c.endpoints.FileURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.creds.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("cloudrpc: download http status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// Delete removes remotePath.
func (c *Client) Delete(ctx context.Context, remotePath string) error {
	fileList, err := json.Marshal([]string{remotePath})
	if err != nil {
		return err
	}

	data := url.Values{}
	data.Set("async", "2")
	data.Set("filelist", string(fileList))

	params := url.Values{}
	params.Set("method", "filemanager")
	params.Set("opera", "delete")

	body, err := c.request(ctx, "POST", c.endpoints.FileURL, params, strings.NewReader(data.Encode()))
	if err != nil {
		return err
	}

	var resp pcsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("cloudrpc: unmarshal delete response: %w", err)
	}
	if !resp.isSuccess() {
		return fmt.Errorf("cloudrpc: delete error %d %s", resp.ErrNo, resp.Msg)
	}
	return nil
}

// Rename renames/moves the entry at oldPath to newName within the same
// parent directory.
func (c *Client) Rename(ctx context.Context, oldPath, newName string) error {
	fileList, err := json.Marshal([]map[string]string{{"path": oldPath, "newname": newName}})
	if err != nil {
		return err
	}

	form := url.Values{}
	form.Set("opera", "rename")
	form.Set("async", "0")
	form.Set("filelist", string(fileList))

	params := url.Values{}
	params.Set("method", "filemanager")

	body, err := c.request(ctx, "POST", c.endpoints.FileURL, params, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}

	var resp pcsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("cloudrpc: unmarshal rename response: %w", err)
	}
	if !resp.isSuccess() {
		return fmt.Errorf("cloudrpc: rename error %d %s", resp.ErrNo, resp.Msg)
	}
	return nil
}

// request is the shared authenticated-request helper that ListDir,
// Delete, Rename and the upload steps funnel through, mirroring the
// teacher's request() method. Download and RefreshAccessToken build
// their own requests.
func (c *Client) request(ctx context.Context, method, rawURL string, params url.Values, body io.Reader) ([]byte, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("access_token", c.creds.AccessToken)

	req, err := http.NewRequestWithContext(ctx, method, rawURL+"?"+params.Encode(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.creds.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// Upload runs the full precreate -> upload-slice -> create flow for
// remotePath, returning the assigned handle, content MD5, and final
// size. It spools content to a temp file first because the chunked
// protocol requires knowing the block count and per-block MD5 before any
// slice is sent, and content may be a non-seekable encrypted stream.
func (c *Client) Upload(ctx context.Context, remotePath string, content io.Reader) (uint64, string, int64, error) {
	tmp, err := os.CreateTemp("", "cloudsync-upload-*")
	if err != nil {
		return 0, "", 0, fmt.Errorf("cloudrpc: create temp file: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	size, err := io.Copy(tmp, content)
	if err != nil {
		return 0, "", 0, fmt.Errorf("cloudrpc: spool upload: %w", err)
	}
	if _, err := tmp.Seek(0, 0); err != nil {
		return 0, "", 0, err
	}

	blockMD5s, err := blockMD5List(tmp, size)
	if err != nil {
		return 0, "", 0, fmt.Errorf("cloudrpc: fingerprint upload: %w", err)
	}

	uploadID, err := c.precreate(ctx, remotePath, size, blockMD5s)
	if err != nil {
		return 0, "", 0, fmt.Errorf("cloudrpc: precreate: %w", err)
	}

	if uploadID != "" {
		for i, wantMD5 := range blockMD5s {
			offset := int64(i) * BlockSize
			blockSize := int64(BlockSize)
			if offset+blockSize > size {
				blockSize = size - offset
			}
			section := io.NewSectionReader(tmp, offset, blockSize)

			gotMD5, err := c.uploadSlice(ctx, remotePath, uploadID, i, section, blockSize)
			if err != nil {
				return 0, "", 0, fmt.Errorf("cloudrpc: upload slice %d/%d: %w", i+1, len(blockMD5s), err)
			}
			if gotMD5 != wantMD5 {
				return 0, "", 0, fmt.Errorf("cloudrpc: slice %d checksum mismatch: local %s cloud %s", i, wantMD5, gotMD5)
			}
		}
	}

	handle, md5sum, cloudSize, err := c.create(ctx, remotePath, size, uploadID, blockMD5s)
	if err != nil {
		return 0, "", 0, fmt.Errorf("cloudrpc: create: %w", err)
	}
	if cloudSize != size {
		return 0, "", 0, fmt.Errorf("cloudrpc: size mismatch after create: local %d cloud %d", size, cloudSize)
	}
	return handle, md5sum, cloudSize, nil
}

func blockMD5List(f *os.File, size int64) ([]string, error) {
	var blocks []string
	buf := make([]byte, BlockSize)

	if _, err := f.Seek(0, 0); err != nil {
		return nil, err
	}
	for {
		n, err := io.ReadFull(f, buf)
		if n == 0 {
			break
		}
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return nil, err
		}
		sum := md5.Sum(buf[:n])
		blocks = append(blocks, hex.EncodeToString(sum[:]))
	}
	if size == 0 {
		sum := md5.Sum(nil)
		blocks = append(blocks, hex.EncodeToString(sum[:]))
	}
	return blocks, nil
}

func (c *Client) precreate(ctx context.Context, remotePath string, size int64, blockMD5s []string) (string, error) {
	blockListJSON, _ := json.Marshal(blockMD5s)

	params := url.Values{}
	params.Set("method", "precreate")

	data := url.Values{}
	data.Set("path", remotePath)
	data.Set("size", strconv.FormatInt(size, 10))
	data.Set("isdir", "0")
	data.Set("autoinit", "1")
	data.Set("rtype", "3")
	data.Set("block_list", string(blockListJSON))

	body, err := c.request(ctx, "POST", c.endpoints.FileURL, params, bytes.NewBufferString(data.Encode()))
	if err != nil {
		return "", err
	}

	var resp struct {
		pcsResponse
		UploadID string `json:"uploadid"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", err
	}
	if !resp.isSuccess() {
		return "", fmt.Errorf("precreate error %d %s", resp.ErrNo, resp.Msg)
	}
	return resp.UploadID, nil
}

func (c *Client) uploadSlice(ctx context.Context, remotePath, uploadID string, partSeq int, r io.Reader, size int64) (string, error) {
	params := url.Values{}
	params.Set("method", "upload")
	params.Set("access_token", c.creds.AccessToken)
	params.Set("type", "tmpfile")
	params.Set("path", remotePath)
	params.Set("uploadid", uploadID)
	params.Set("partseq", strconv.Itoa(partSeq))

	var bodyBuf bytes.Buffer
	writer := multipart.NewWriter(&bodyBuf)
	part, err := writer.CreateFormFile("file", "blob")
	if err != nil {
		return "", err
	}
	if _, err := io.CopyN(part, r, size); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoints.SuperfileURL+"?"+params.Encode(), &bodyBuf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("User-Agent", c.creds.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("upload slice http status %d", resp.StatusCode)
	}

	var res struct {
		MD5   string `json:"md5"`
		ErrNo int    `json:"errno"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return "", fmt.Errorf("decode slice response: %w", err)
	}
	if res.ErrNo != 0 {
		return "", fmt.Errorf("upload slice errno %d", res.ErrNo)
	}
	return res.MD5, nil
}

func (c *Client) create(ctx context.Context, remotePath string, size int64, uploadID string, blockMD5s []string) (uint64, string, int64, error) {
	blockListJSON, err := json.Marshal(blockMD5s)
	if err != nil {
		return 0, "", 0, err
	}

	params := url.Values{}
	params.Set("method", "create")

	data := url.Values{}
	data.Set("path", remotePath)
	data.Set("size", strconv.FormatInt(size, 10))
	data.Set("isdir", "0")
	data.Set("uploadid", uploadID)
	data.Set("rtype", "3")
	data.Set("block_list", string(blockListJSON))

	body, err := c.request(ctx, "POST", c.endpoints.FileURL, params, strings.NewReader(data.Encode()))
	if err != nil {
		return 0, "", 0, err
	}

	var resp struct {
		pcsResponse
		FsID uint64 `json:"fs_id"`
		MD5  string `json:"md5"`
		Size int64  `json:"size"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, "", 0, err
	}
	if !resp.isSuccess() {
		return 0, "", 0, fmt.Errorf("create error %d %s", resp.ErrNo, resp.Msg)
	}
	return resp.FsID, resp.MD5, resp.Size, nil
}
