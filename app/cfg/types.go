package cfg

type Cfg struct {
	// Application configuration
	Port    string
	BaseUrl string

	// Remote site configuration
	SiteBaseUrl string
	UserAgent   string

	// Scraping behavior
	RequestTimeout int // seconds, per HTTP call
	PacingDelay    int // seconds between consecutive event page fetches
	CacheTTL       int // seconds a cached attendance result stays fresh
	DBPath         string

	// Application metadata
	Timezone string
	Debug    bool
	Version  string
}
