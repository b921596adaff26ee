package api

import (
	"encoding/json"
	"github.com/1f349/bluebell/models"
	"github.com/1f349/bluebell/utils"
	"github.com/1f349/mjwt"
	validateDomain "github.com/chmike/domain"
	"github.com/julienschmidt/httprouter"
	"github.com/miekg/dns"
	"net/http"
	"strings"
)

// decodeRecord reads a record from the request body, the name may be relative
// to the zone
func decodeRecord(rw http.ResponseWriter, req *http.Request, origin string) (models.Record, bool) {
	var a models.Record
	dec := json.NewDecoder(req.Body)
	err := dec.Decode(&a)
	if err != nil {
		apiError(rw, http.StatusBadRequest, "Invalid JSON")
		return models.Record{}, false
	}

	a.Name = utils.ResolveRecordName(a.Name, origin)
	if err := validateDomain.Check(strings.TrimSuffix(strings.TrimPrefix(a.Name, "*."), ".")); err != nil {
		apiError(rw, http.StatusBadRequest, "Invalid record name")
		return models.Record{}, false
	}
	if !utils.InZone(a.Name, origin) {
		apiError(rw, http.StatusBadRequest, "Record not in zone")
		return models.Record{}, false
	}
	return a, true
}

func AddRecordEndpoints(r *httprouter.Router, res zoneCatalog, verify *mjwt.KeyStore) {
	r.GET("/zones/:zone/records", checkAuthWithPerm(verify, zonesPerm, func(rw http.ResponseWriter, req *http.Request, params httprouter.Params, b AuthClaims) {
		z, ok := ownedZone(rw, res, params, b)
		if !ok {
			return
		}
		records := make([]*models.Record, 0)
		for _, rr := range z.Records() {
			record, err := models.FromRR(rr)
			if err != nil {
				// signatures and other types without an API model
				continue
			}
			records = append(records, record)
		}
		_ = json.NewEncoder(rw).Encode(records)
	}))
	r.POST("/zones/:zone/records", checkAuthWithPerm(verify, zonesPerm, func(rw http.ResponseWriter, req *http.Request, params httprouter.Params, b AuthClaims) {
		z, ok := ownedZone(rw, res, params, b)
		if !ok {
			return
		}
		a, ok := decodeRecord(rw, req, z.Origin())
		if !ok {
			return
		}

		var defaultTtl uint32
		if soa := z.Soa(); soa != nil {
			defaultTtl = soa.Minttl
		}
		rcode, changed := z.Update(nil, []dns.RR{a.RR(defaultTtl)})
		if rcode != dns.RcodeSuccess {
			apiError(rw, http.StatusBadRequest, "Update failed: "+dns.RcodeToString[rcode])
			return
		}
		if !changed {
			apiError(rw, http.StatusConflict, "Record not added")
			return
		}
		rw.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(rw).Encode(struct {
			Serial uint32 `json:"serial"`
		}{
			Serial: z.Serial(),
		})
	}))
	r.DELETE("/zones/:zone/records", checkAuthWithPerm(verify, zonesPerm, func(rw http.ResponseWriter, req *http.Request, params httprouter.Params, b AuthClaims) {
		z, ok := ownedZone(rw, res, params, b)
		if !ok {
			return
		}
		a, ok := decodeRecord(rw, req, z.Origin())
		if !ok {
			return
		}

		rr := a.RR(0)
		rr.Header().Class = dns.ClassNONE
		rcode, changed := z.Update(nil, []dns.RR{rr})
		if rcode != dns.RcodeSuccess {
			apiError(rw, http.StatusBadRequest, "Update failed: "+dns.RcodeToString[rcode])
			return
		}
		if !changed {
			apiError(rw, http.StatusNotFound, "Record not found")
			return
		}
		_ = json.NewEncoder(rw).Encode(struct {
			Serial uint32 `json:"serial"`
		}{
			Serial: z.Serial(),
		})
	}))
}
