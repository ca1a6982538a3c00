package attribution

import (
	"time"

	"postback-relay/internal/models"
)

type bundle map[string]interface{}

func (b bundle) put(key, value string) {
	if value != "" {
		b[key] = value
	}
}

func (b bundle) clickTiming(createdAt time.Time, now time.Time) {
	if createdAt.IsZero() {
		b["timeToConversion"] = nil
		return
	}
	b["clickedAt"] = createdAt
	b["timeToConversion"] = now.Sub(createdAt).Milliseconds()
}

func (b bundle) utm(u models.UTM) {
	b.put("utmSource", u.Source)
	b.put("utmMedium", u.Medium)
	b.put("utmCampaign", u.Campaign)
	b.put("utmContent", u.Content)
	b.put("utmTerm", u.Term)
}

func (b bundle) geo(g models.Geo) {
	b.put("country", g.Country)
	b.put("region", g.Region)
	b.put("city", g.City)
}

// RedirectAttribution flattens a redirect click into event attribution data.
func RedirectAttribution(rc *models.RedirectClick, now time.Time) map[string]interface{} {
	b := bundle{}
	b.put("originalClickToken", rc.ClickToken)
	b.put("externalClickId", rc.ExternalClickID)
	b.clickTiming(rc.CreatedAt, now)
	b.put("gclid", rc.AdNetwork.GCLID)
	b.put("fbclid", rc.AdNetwork.FBCLID)
	b.put("msclkid", rc.AdNetwork.MSCLKID)
	b.put("ttclid", rc.AdNetwork.TTCLID)
	b.put("twclid", rc.AdNetwork.TWCLID)
	b.utm(rc.UTM)
	b.geo(rc.Geo)
	if rc.Redirect != nil {
		b.put("redirectId", rc.Redirect.ID)
		b.put("redirectName", rc.Redirect.Name)
		b.put("redirectSlug", rc.Redirect.Slug)
	}
	if len(rc.CapturedParams) > 0 {
		b["capturedParams"] = rc.CapturedParams
	}
	return b
}

// LinkAttribution flattens a legacy link click into event attribution data.
func LinkAttribution(lc *models.LinkClick, now time.Time) map[string]interface{} {
	b := bundle{}
	b.put("originalClickId", lc.ClickID)
	b.clickTiming(lc.CreatedAt, now)
	b.put("gclid", lc.AdNetwork.GCLID)
	b.put("fbclid", lc.AdNetwork.FBCLID)
	b.put("msclkid", lc.AdNetwork.MSCLKID)
	b.put("ttclid", lc.AdNetwork.TTCLID)
	b.utm(lc.UTM)
	b.geo(lc.Geo)
	if lc.Link != nil {
		b.put("linkId", lc.Link.ID)
		b.put("linkName", lc.Link.Name)
		b.put("linkSlug", lc.Link.Slug)
	}
	return b
}
