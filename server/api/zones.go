package api

import (
	"encoding/json"
	"fmt"
	serverUtils "github.com/1f349/bluebell/server/utils"
	"github.com/1f349/bluebell/zone"
	"github.com/1f349/mjwt"
	"github.com/julienschmidt/httprouter"
	"net/http"
	"slices"
)

const zonesPerm = "bluebell:zones"

type zoneInfo struct {
	Name    string `json:"name"`
	Serial  uint32 `json:"serial"`
	RRsets  int    `json:"rrsets"`
	Primary string `json:"primary"`
}

func newZoneInfo(z *zone.Zone) zoneInfo {
	info := zoneInfo{Name: z.Origin(), Serial: z.Serial(), RRsets: z.Len()}
	if soa := z.Soa(); soa != nil {
		info.Primary = soa.Ns
	}
	return info
}

// ownedZone finds the zone named by the route when the claims own it
func ownedZone(rw http.ResponseWriter, res zoneCatalog, params httprouter.Params, b AuthClaims) (*zone.Zone, bool) {
	name, ok := serverUtils.GetZoneName(params)
	if !ok || !validateZoneOwnershipClaims(name, b.Claims.Perms) {
		apiError(rw, http.StatusNotFound, "Invalid zone")
		return nil, false
	}
	z, ok := res.Zone(name)
	if !ok {
		apiError(rw, http.StatusNotFound, "Invalid zone")
		return nil, false
	}
	return z, true
}

func AddZoneEndpoints(r *httprouter.Router, res zoneCatalog, verify *mjwt.KeyStore) {
	r.GET("/zones", checkAuthWithPerm(verify, zonesPerm, func(rw http.ResponseWriter, req *http.Request, params httprouter.Params, b AuthClaims) {
		owned := getZoneOwnershipClaims(b.Claims.Perms)
		zones := make([]zoneInfo, 0)
		for _, z := range res.Zones() {
			if slices.Contains(owned, z.Origin()) || validateZoneOwnershipClaims(z.Origin(), b.Claims.Perms) {
				zones = append(zones, newZoneInfo(z))
			}
		}
		_ = json.NewEncoder(rw).Encode(zones)
	}))
	r.GET("/zones/:zone", checkAuthWithPerm(verify, zonesPerm, func(rw http.ResponseWriter, req *http.Request, params httprouter.Params, b AuthClaims) {
		z, ok := ownedZone(rw, res, params, b)
		if !ok {
			return
		}
		_ = json.NewEncoder(rw).Encode(newZoneInfo(z))
	}))

	// Endpoint for getting a zone file
	r.GET("/zones/:zone/zone-file", checkAuthWithPerm(verify, zonesPerm, func(rw http.ResponseWriter, req *http.Request, params httprouter.Params, b AuthClaims) {
		z, ok := ownedZone(rw, res, params, b)
		if !ok {
			return
		}

		rw.Header().Set("Content-Type", "text/dns")
		// comment with zone name
		_, err := fmt.Fprintf(rw, "; Zone file for %s\n", z.Origin())
		if err != nil {
			return
		}
		_ = z.WriteZoneFile(rw)
	}))
}
