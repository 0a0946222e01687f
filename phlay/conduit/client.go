package conduit

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/adisho1992/phlay/phlay/usererr"
)

// Client is a minimal conduit API client. Methods are called as
// POST <uri>/api/<method> with the parameters JSON-encoded in the
// `params` form field, token included as __conduit__.token.
type Client struct {
	uri   string
	token string
	hc    *http.Client
}

func NewClient(uri, token string) *Client {
	s := &Client{}
	s.uri = strings.TrimRight(uri, "/")
	s.token = token
	s.hc = http.DefaultClient
	return s
}

// URI returns the service base, used to render revision links.
func (s *Client) URI() string {
	return s.uri
}

func (s *Client) Call(ctx context.Context, method string, params map[string]interface{}, result interface{}) error {
	if params == nil {
		params = map[string]interface{}{}
	}
	params["__conduit__"] = map[string]string{"token": s.token}
	body, err := json.Marshal(params)
	if err != nil {
		return err
	}
	form := url.Values{}
	form.Set("params", string(body))
	form.Set("output", "json")
	form.Set("__conduit__", "1")

	req, err := http.NewRequestWithContext(ctx, "POST", s.uri+"/api/"+method, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := s.hc.Do(req)
	if err != nil {
		return fmt.Errorf("error calling %v: %v", method, err)
	}
	defer resp.Body.Close()

	var envelope struct {
		Result    json.RawMessage `json:"result"`
		ErrorCode string          `json:"error_code"`
		ErrorInfo string          `json:"error_info"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("error decoding %v response: %v", method, err)
	}
	if envelope.ErrorCode != "" {
		return usererr.Errorf("%v failed: %v (%v)", method, envelope.ErrorInfo, envelope.ErrorCode)
	}
	if result != nil {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("error decoding %v result: %v", method, err)
		}
	}
	return nil
}

// UploadFile pushes one binary body and returns its file PHID.
func (s *Client) UploadFile(ctx context.Context, name string, data []byte) (string, error) {
	var phid string
	err := s.Call(ctx, "file.upload", map[string]interface{}{
		"name":        name,
		"data_base64": base64.StdEncoding.EncodeToString(data),
	}, &phid)
	if err != nil {
		return "", err
	}
	return phid, nil
}

// DiffResult identifies a created diff.
type DiffResult struct {
	DiffID int    `json:"diffid"`
	PHID   string `json:"phid"`
	URI    string `json:"uri"`
}

// CreateDiff publishes one commit's changes as a new diff.
func (s *Client) CreateDiff(ctx context.Context, changes []Change, baseRevision string) (*DiffResult, error) {
	var res DiffResult
	err := s.Call(ctx, "differential.creatediff", map[string]interface{}{
		"changes":                   changes,
		"sourceMachine":             "",
		"sourcePath":                "/",
		"branch":                    "HEAD",
		"sourceControlSystem":       "hg",
		"sourceControlPath":         "/",
		"sourceControlBaseRevision": baseRevision,
		"creationMethod":            "phlay",
		"lintStatus":                "none",
		"unitStatus":                "none",
		"repositoryPHID":            nil,
	}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// SetDiffProperty attaches named metadata to a diff.
func (s *Client) SetDiffProperty(ctx context.Context, diffID int, name string, data interface{}) error {
	enc, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return s.Call(ctx, "differential.setdiffproperty", map[string]interface{}{
		"diff_id": diffID,
		"name":    name,
		"data":    string(enc),
	}, nil)
}

// Transaction is one field edit applied by differential.revision.edit.
type Transaction struct {
	Type  string      `json:"type"`
	Value interface{} `json:"value"`
}

// RevisionResult is the object portion of a revision.edit response.
type RevisionResult struct {
	Object struct {
		ID   int    `json:"id"`
		PHID string `json:"phid"`
	} `json:"object"`
}

// EditRevision creates (revisionID 0) or updates a revision.
func (s *Client) EditRevision(ctx context.Context, revisionID int, txns []Transaction) (*RevisionResult, error) {
	params := map[string]interface{}{"transactions": txns}
	if revisionID != 0 {
		params["objectIdentifier"] = fmt.Sprintf("D%d", revisionID)
	}
	var res RevisionResult
	if err := s.Call(ctx, "differential.revision.edit", params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
