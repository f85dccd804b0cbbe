package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestHandleListPrefixes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/prefixes", nil)

	NewPrefixHandler().HandleList(c)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var response struct {
		Prefixes []struct {
			Type             string `json:"type"`
			Bytes            string `json:"bytes"`
			RecommendedPorts []int  `json:"recommended_ports"`
		} `json:"prefixes"`
		Total int `json:"total"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}

	if response.Total != 5 {
		t.Errorf("expected 5 prefixes, got %d", response.Total)
	}
	if len(response.Prefixes) == 0 || response.Prefixes[0].Type != "http" {
		t.Errorf("expected http first in catalog, got %+v", response.Prefixes)
	}
	for _, p := range response.Prefixes {
		if len(p.RecommendedPorts) == 0 {
			t.Errorf("prefix %s: expected recommended ports", p.Type)
		}
	}
}
