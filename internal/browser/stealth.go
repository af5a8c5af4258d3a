package browser

// Fingerprint assets for the stealth environment. User agents are weighted
// toward the most common desktop Chrome builds; viewports cover the usual
// desktop resolutions.

type weightedUserAgent struct {
	UA     string
	Weight int
}

var userAgents = []weightedUserAgent{
	{UA: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36", Weight: 40},
	{UA: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36", Weight: 25},
	{UA: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36", Weight: 20},
	{UA: "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36", Weight: 15},
}

type viewport struct {
	Width  int
	Height int
}

var viewports = []viewport{
	{1920, 1080},
	{1680, 1050},
	{1600, 900},
	{1536, 864},
	{1440, 900},
	{1366, 768},
}

// stealthInitScript runs before any page script on every new document. It
// removes the automation marker and fills in the surfaces headless Chrome
// leaves empty.
const stealthInitScript = `
Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
Object.defineProperty(navigator, 'plugins', {
  get: () => [
    { name: 'Chrome PDF Plugin' },
    { name: 'Chrome PDF Viewer' },
    { name: 'Native Client' }
  ]
});
Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'] });
window.chrome = window.chrome || { runtime: {} };
const origQuery = window.navigator.permissions.query;
window.navigator.permissions.query = (parameters) => (
  parameters.name === 'notifications'
    ? Promise.resolve({ state: Notification.permission })
    : origQuery(parameters)
);
`

// pickUserAgent draws from the weighted table using the given roll in
// [0, total weight).
func pickUserAgent(roll int) string {
	total := 0
	for _, ua := range userAgents {
		total += ua.Weight
	}
	roll %= total
	for _, ua := range userAgents {
		roll -= ua.Weight
		if roll < 0 {
			return ua.UA
		}
	}
	return userAgents[0].UA
}
