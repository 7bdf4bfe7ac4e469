// Package clients talks to the HTTP services results are delivered to.
package clients

import (
	"net/http"
	"time"
)

type HTTP struct{ c *http.Client }

func NewHTTP() *HTTP { return &HTTP{c: &http.Client{Timeout: 60 * time.Second}} }

// NewHTTPWith uses c for every request.
func NewHTTPWith(c *http.Client) *HTTP { return &HTTP{c: c} }
