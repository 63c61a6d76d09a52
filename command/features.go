package command

import "strings"

// Feature names.
const (
	FeatureObject   = "Object"
	FeatureCurrency = "Currency"
	FeatureNews     = "News"
	FeatureChatbot  = "Chatbot"
	FeatureMusic    = "Music"
	FeatureText     = "Text"
	FeatureProduct  = "Product"
	FeatureDistance = "Distance"
	FeatureFace     = "Face"
)

// Feature is a navigable page of the application.
type Feature struct {
	Name         string
	Route        string
	Announcement string
}

// Features is the navigation table.
var Features = []Feature{
	{Name: FeatureObject, Route: "/image/object", Announcement: "Navigating to Object Detection"},
	{Name: FeatureCurrency, Route: "/image/currency", Announcement: "Navigating to Currency Detection"},
	{Name: FeatureNews, Route: "/news", Announcement: "Navigating to News"},
	{Name: FeatureChatbot, Route: "/chatbot", Announcement: "Navigating to Chatbot"},
	{Name: FeatureMusic, Route: "/music", Announcement: "Navigating to Music Detection"},
	{Name: FeatureText, Route: "/image/text", Announcement: "Navigating to Text Recognition"},
	{Name: FeatureProduct, Route: "/image/barcode", Announcement: "Navigating to Barcode Scanning"},
	{Name: FeatureDistance, Route: "/image/object", Announcement: "Navigating to Distance Estimation"},
	{Name: FeatureFace, Route: "/image/object", Announcement: "Navigating to Face Recognition"},
}

// LookupFeature finds a feature by name, case-insensitively.
func LookupFeature(name string) (Feature, bool) {
	for _, f := range Features {
		if strings.EqualFold(f.Name, name) {
			return f, true
		}
	}
	return Feature{}, false
}

// Announcement returns the phrase spoken when navigating to name.
func Announcement(name string) string {
	if f, ok := LookupFeature(name); ok {
		return f.Announcement
	}
	return "Navigating to " + name
}
