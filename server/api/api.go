package api

import (
	"encoding/json"
	"github.com/1f349/bluebell/zone"
	"github.com/1f349/mjwt"
	"github.com/1f349/mjwt/auth"
	"github.com/1f349/violet/utils"
	"github.com/julienschmidt/httprouter"
	"github.com/miekg/dns"
	"github.com/rcrowley/go-metrics"
	"net/http"
	"strings"
)

// zoneCatalog is the part of the resolver used by the API
type zoneCatalog interface {
	Zones() []*zone.Zone
	Zone(name string) (*zone.Zone, bool)
}

func NewApiServer(res zoneCatalog, verify *mjwt.KeyStore) *httprouter.Router {
	r := httprouter.New()

	r.GET("/", func(rw http.ResponseWriter, req *http.Request, params httprouter.Params) {
		http.Error(rw, "Bluebell API Endpoint", http.StatusOK)
	})
	r.GET("/metrics", func(rw http.ResponseWriter, req *http.Request, params httprouter.Params) {
		_ = json.NewEncoder(rw).Encode(metrics.DefaultRegistry.GetAll())
	})

	AddZoneEndpoints(r, res, verify)
	AddRecordEndpoints(r, res, verify)

	return r
}

// apiError outputs a generic JSON error message
func apiError(rw http.ResponseWriter, code int, m string) {
	rw.WriteHeader(code)
	_ = json.NewEncoder(rw).Encode(map[string]string{
		"error": m,
	})
}

// getZoneOwnershipClaims returns the domains marked as owned from PermStorage,
// they match `domain:owns=<fqdn>` where fqdn will be returned
func getZoneOwnershipClaims(perms *auth.PermStorage) []string {
	a := perms.Search("domain:owns=*")
	for i := range a {
		a[i] = dns.Fqdn(a[i][len("domain:owns="):])
	}
	return a
}

// validateZoneOwnershipClaims validates if the claims contain the
// `domain:owns=<fqdn>` field with the matching top level domain
func validateZoneOwnershipClaims(a string, perms *auth.PermStorage) bool {
	a = strings.TrimRight(a, ".")
	if fqdn, ok := utils.GetTopFqdn(a); ok {
		if perms.Has("domain:owns=" + fqdn) {
			return true
		}
	}
	return false
}
