/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package proxyapi

import (
	"net/http"
	"net/url"

	"github.com/musicranker/mbproxy/httpserver/middleware"
	"github.com/musicranker/mbproxy/internal/libinfo"
	"github.com/musicranker/mbproxy/restapi"
)

// Endpoints lists public routes of the proxy in the form they're shown in the root response.
var Endpoints = []string{
	"/artist/:id",
	"/release-groups",
	"/release-group/:id",
	"/release/:id",
	"/cover-art/:id",
	"/health",
}

// queryParam is a caller query parameter forwarded to MusicBrainz. Empty def means no default.
type queryParam struct {
	name string
	def  string
}

// mbRoute maps a proxy route to the MusicBrainz Web Service resource.
type mbRoute struct {
	resource string
	withID   bool
	params   []queryParam
}

var (
	artistRoute = mbRoute{
		resource: "artist", withID: true,
		params: []queryParam{{name: "inc", def: "url-rels+aliases"}},
	}
	releaseGroupsRoute = mbRoute{
		resource: "release-group",
		params: []queryParam{
			{name: "artist"},
			{name: "type", def: "album"},
			{name: "limit", def: "100"},
			{name: "offset"},
		},
	}
	releaseGroupRoute = mbRoute{
		resource: "release-group", withID: true,
		params: []queryParam{{name: "inc", def: "releases"}},
	}
	releaseRoute = mbRoute{
		resource: "release", withID: true,
		params: []queryParam{{name: "inc", def: "recordings"}},
	}
)

func (rt mbRoute) upstreamPath(id string) string {
	if !rt.withID {
		return rt.resource
	}
	return rt.resource + "/" + url.PathEscape(id)
}

// query builds the upstream query: known parameters taken from the caller or defaulted, and fmt=json.
func (rt mbRoute) query(callerQuery url.Values) url.Values {
	q := make(url.Values, len(rt.params)+1)
	for _, p := range rt.params {
		if v := callerQuery.Get(p.name); v != "" {
			q.Set(p.name, v)
		} else if p.def != "" {
			q.Set(p.name, p.def)
		}
	}
	q.Set("fmt", "json")
	return q
}

type indexResponse struct {
	Name      string   `json:"name"`
	Version   string   `json:"version"`
	Endpoints []string `json:"endpoints"`
}

func (h *Handler) serveIndex(rw http.ResponseWriter, r *http.Request) {
	endpoints := make([]string, 0, len(Endpoints))
	for _, e := range Endpoints {
		endpoints = append(endpoints, h.opts.RoutePrefix+e)
	}
	restapi.RespondJSON(rw, indexResponse{Name: libinfo.ServiceName, Version: h.opts.Version, Endpoints: endpoints},
		middleware.GetLoggerFromContextOrDisabled(r.Context()))
}
