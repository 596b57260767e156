package runner

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"

	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/httpclient"
	"github.com/ternarybob/vigil/internal/models"
)

// checkHTTP calls the application API and verifies status, JSON paths and HTML selectors.
// Transport failures are plain errors; every disagreement is an AssertionMismatchError.
func checkHTTP(ctx context.Context, client *httpclient.Client, req *models.HTTPRequest) (string, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
		if req.Body != nil {
			method = http.MethodPost
		}
	}

	resp, err := client.Do(ctx, method, req.Path, req.Headers, req.Body)
	if err != nil {
		return "", err
	}
	state := fmt.Sprintf("%s %s -> %d", method, req.Path, resp.StatusCode)

	if req.Status != 0 {
		if resp.StatusCode != req.Status {
			return state, mismatch(method+" "+req.Path+" status", fmt.Sprint(req.Status), fmt.Sprintf("%d %s", resp.StatusCode, snippet(resp.Body)))
		}
	} else if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return state, mismatch(method+" "+req.Path+" status", "2xx", fmt.Sprintf("%d %s", resp.StatusCode, snippet(resp.Body)))
	}

	if len(req.JSON) > 0 {
		// A body declared as HTML is never checked as JSON
		if resp.IsHTML() || !gjson.ValidBytes(resp.Body) {
			return state, mismatch(method+" "+req.Path+" body", "valid JSON", bodyDescription(resp))
		}
		for _, exp := range req.JSON {
			if err := checkJSONPath(resp.Body, exp); err != nil {
				return state, err
			}
		}
	}

	if len(req.HTML) > 0 {
		if resp.IsJSON() {
			return state, mismatch(method+" "+req.Path+" body", "HTML document", bodyDescription(resp))
		}
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
		if err != nil {
			return state, fmt.Errorf("failed to parse HTML response: %w", err)
		}
		for _, exp := range req.HTML {
			if err := checkHTMLSelector(doc, exp); err != nil {
				return state, err
			}
		}
	}
	return state, nil
}

// checkJSONPath evaluates one gjson path expectation
func checkJSONPath(body []byte, exp models.JSONExpect) error {
	result := gjson.GetBytes(body, exp.Path)
	what := "json " + exp.Path

	if exp.Exists != nil {
		if result.Exists() != *exp.Exists {
			return mismatch(what+" exists", fmt.Sprint(*exp.Exists), fmt.Sprint(result.Exists()))
		}
		if !*exp.Exists {
			return nil
		}
	}
	if !result.Exists() {
		return mismatch(what, "present", "missing")
	}

	if exp.Equals != nil && !jsonEqual(exp.Equals, result.Value()) {
		return mismatch(what, renderJSON(exp.Equals), result.Raw)
	}

	if exp.Length != nil {
		n := jsonLength(result)
		if n != *exp.Length {
			return mismatch(what+" length", fmt.Sprint(*exp.Length), fmt.Sprint(n))
		}
	}

	if exp.Contains != nil {
		n := occurrences(result, exp.Contains)
		if exp.Occurrences != nil {
			if n != *exp.Occurrences {
				return mismatch(what+" occurrences of "+renderJSON(exp.Contains), fmt.Sprint(*exp.Occurrences), fmt.Sprintf("%d in %s", n, result.Raw))
			}
		} else if n == 0 {
			return mismatch(what, "containing "+renderJSON(exp.Contains), result.Raw)
		}
	}
	return nil
}

// occurrences counts array elements equal to want, or substring hits in a string
func occurrences(result gjson.Result, want interface{}) int {
	if result.IsArray() {
		n := 0
		for _, elem := range result.Array() {
			if jsonEqual(want, elem.Value()) {
				n++
			}
		}
		return n
	}
	if s, ok := want.(string); ok && result.Type == gjson.String && s != "" {
		return strings.Count(result.String(), s)
	}
	if jsonEqual(want, result.Value()) {
		return 1
	}
	return 0
}

func jsonLength(result gjson.Result) int {
	switch {
	case result.IsArray():
		return len(result.Array())
	case result.IsObject():
		return len(result.Map())
	case result.Type == gjson.String:
		return len(result.String())
	}
	return 0
}

// checkHTMLSelector verifies a CSS selector against an HTML document
func checkHTMLSelector(doc *goquery.Document, exp models.HTMLExpect) error {
	sel := doc.Find(exp.Selector)
	what := "html " + exp.Selector
	if exp.Count != nil {
		if sel.Length() != *exp.Count {
			return mismatch(what+" count", fmt.Sprint(*exp.Count), fmt.Sprint(sel.Length()))
		}
	} else if sel.Length() == 0 {
		return mismatch(what, "present", "missing")
	}
	if exp.TextContains != "" {
		text := strings.TrimSpace(sel.Text())
		if !strings.Contains(text, exp.TextContains) {
			return mismatch(what+" text", "containing "+quote(exp.TextContains), quote(text))
		}
	}
	return nil
}

// bodyDescription names the declared content type alongside the start of the body
func bodyDescription(resp *httpclient.Response) string {
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		return ct + " " + snippet(resp.Body)
	}
	return snippet(resp.Body)
}

func snippet(body []byte) string {
	return common.Truncate(strings.TrimSpace(string(body)), 120)
}
