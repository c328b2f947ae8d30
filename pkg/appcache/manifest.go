package appcache

// Manifest is the fixed asset list of one cache version.
type Manifest struct {
	// Version names the cache. Changing it invalidates every older cache on
	// the next activation.
	Version string
	// Assets are paths relative to the scope root, in install order.
	Assets []string
}

// DefaultManifest lists the web shell.
var DefaultManifest = Manifest{
	Version: "meditate-v1",
	Assets: []string{
		"./",
		"./index.html",
		"./styles.css",
		"./app.js",
		"./manifest.webmanifest",
		"./public/icon-192.png",
		"./public/icon-512.png",
	},
}

// URIs resolves every asset. Empty entries are skipped.
func (m Manifest) URIs() ([]string, error) {
	uris := make([]string, 0, len(m.Assets))
	for _, a := range m.Assets {
		if a == "" {
			continue
		}
		uri, err := ResolveAsset(a)
		if err != nil {
			return nil, err
		}
		uris = append(uris, uri)
	}
	return uris, nil
}
