package services

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/username/wertfolio/backend/src/config"
	"github.com/username/wertfolio/backend/src/logger"
	"github.com/username/wertfolio/backend/src/model"
	"github.com/username/wertfolio/backend/src/models"
	"github.com/username/wertfolio/backend/src/security/validation"
	"github.com/username/wertfolio/backend/src/utils"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
)

// The primary source only serves roughly a year of history; older requests
// are answered with the sentinel without touching the network.
const maxCloseAgeDays = 366

// Window, in days, scanned around a requested date on the market-data
// fallback before giving up.
const closeSearchWindowDays = 7

var (
	ajaxTemplateRe = regexp.MustCompile(`(?i)((?:https?:\\/\\/|\\/)[^"']*histor[^"']*ajax[^"']*json[^"']*)`)
	pageParamRe    = regexp.MustCompile(`page=\d+`)
	tagRe          = regexp.MustCompile(`<[^>]+>`)
	categoryRe     = regexp.MustCompile(`(?i)/web/Wertpapier/([^/]+)/`)

	h1TitleRe   = regexp.MustCompile(`(?i)<h1[^>]*class="[^"]*headline-small--fluid[^"]*"[^>]*title="([^"]+)"`)
	h1BodyRe    = regexp.MustCompile(`(?is)<h1[^>]*class="[^"]*headline-small--fluid[^"]*"[^>]*>(.*?)</h1>`)
	ogTitleRe   = regexp.MustCompile(`(?i)<meta[^>]+property="og:title"[^>]+content="([^"]+)"`)
	pageTitleRe = regexp.MustCompile(`(?is)<title>(.*?)</title>`)
	titleTailRe = regexp.MustCompile(`(?i)\s*\|\s*BNP.*$`)
)

// Keys probed when walking a history payload for a dated close.
var (
	payloadDateKeys  = []string{"date", "datum", "tradingDate", "tradeDate", "valuationDate"}
	payloadCloseKeys = []string{"close", "closePrice", "closing", "nav", "last", "price", "kurs", "schlusskurs"}
)

// resolverServiceImpl implements the ordered source-fallback chain against
// the institution site, with public market-data providers as backstops. It
// owns its own scraping session (cookie jar); nothing about it is shared
// process-wide.
type resolverServiceImpl struct {
	db          *sql.DB
	httpClient  http.Client
	baseURL     string
	ajaxTmpls   []string
	pageLimit   int
	openFigiURL string
	openFigiKey string
	prices      PriceService
	limiter     *rate.Limiter // polite pacing towards the institution site
}

func NewResolverService(db *sql.DB, prices PriceService) ResolverService {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		logger.L.Error("Failed to create cookie jar", "error", err)
	}
	return &resolverServiceImpl{
		db: db,
		httpClient: http.Client{
			Jar:     jar,
			Timeout: config.Cfg.HTTPTimeout,
		},
		baseURL:     config.Cfg.InstitutionBaseURL,
		ajaxTmpls:   config.Cfg.CloseAjaxTemplates,
		pageLimit:   config.Cfg.ClosePageLimit,
		openFigiURL: config.Cfg.OpenFIGIURL,
		openFigiKey: config.Cfg.OpenFIGIKey,
		prices:      prices,
		limiter:     rate.NewLimiter(rate.Every(250*time.Millisecond), 1),
	}
}

func (s *resolverServiceImpl) Resolve(identifier, txnDate string) (*models.SecurityMetadata, error) {
	isin := utils.NormalizeISIN(identifier)
	if isin == "" {
		return nil, ErrInvalidIdentifier
	}

	meta := s.resolveNameAndURL(isin)
	if meta.Name == "" {
		return nil, fmt.Errorf("%w: %s", ErrNameNotFound, isin)
	}

	if txnDate = utils.ParseDate(txnDate); txnDate != "" {
		meta.ClosePrice, meta.CloseCurrency = s.closingPriceForDate(isin, txnDate, meta.URL)
	}
	return meta, nil
}

// resolveNameAndURL runs the name chain: cached mapping, institution search
// and page scrape, name hint from search results, market-data search, and
// finally the identifier-mapping service. A candidate equal to the ISIN
// itself never counts as a name.
func (s *resolverServiceImpl) resolveNameAndURL(isin string) *models.SecurityMetadata {
	meta := &models.SecurityMetadata{ISIN: isin}

	if cached, err := model.GetMappingByISIN(s.db, isin); err == nil && cached != nil {
		if name := utils.NormalizeName(cached.SecurityName); name != "" && utils.NormalizeISIN(name) != isin {
			meta.Name = name
			meta.URL = cached.SecurityURL
			meta.Source = cached.Source
			meta.Category = cached.Category
			return meta
		}
	}

	securityURL, searchSource, nameHint := s.discoverSecurityURL(isin)
	meta.URL = securityURL
	if securityURL != "" {
		meta.Source = searchSource
		if m := categoryRe.FindStringSubmatch(securityURL); m != nil {
			meta.Category = m[1]
		}
		if name := s.scrapeNameFromPage(securityURL); s.acceptName(name, isin) {
			meta.Name = name
			s.storeMapping(isin, "", "", "", meta)
			return meta
		}
	}

	if s.acceptName(nameHint, isin) {
		meta.Name = nameHint
		if meta.Source == "" {
			meta.Source = "search-text"
		}
		s.storeMapping(isin, "", "", "", meta)
		return meta
	}

	if symbol, exchange, currency, shortName, err := s.prices.SearchByIdentifier(isin); err == nil {
		if name := s.cleanName(shortName); s.acceptName(name, isin) {
			meta.Name = name
			meta.Source = "market-data-search"
			s.storeMapping(isin, symbol, exchange, currency, meta)
			return meta
		}
	} else {
		logger.L.Warn("Market-data search failed", "isin", isin, "error", err)
	}

	if name, ticker := s.openFigiName(isin); s.acceptName(name, isin) {
		meta.Name = name
		meta.Source = "openfigi"
		s.storeMapping(isin, ticker, "", "", meta)
		return meta
	}

	return meta
}

func (s *resolverServiceImpl) acceptName(name, isin string) bool {
	return name != "" && utils.NormalizeISIN(name) != isin
}

// cleanName strips markup and control characters from a scraped candidate
// before normalizing.
func (s *resolverServiceImpl) cleanName(raw string) string {
	return utils.NormalizeName(validation.SanitizeText(validation.StripUnprintable(html.UnescapeString(raw))))
}

func (s *resolverServiceImpl) storeMapping(isin, ticker, exchange, currency string, meta *models.SecurityMetadata) {
	m := model.ISINTickerMap{
		ISIN:         isin,
		TickerSymbol: ticker,
		Currency:     utils.NormalizeCurrency(currency),
		SecurityName: meta.Name,
		SecurityURL:  meta.URL,
		Source:       meta.Source,
		Category:     meta.Category,
	}
	if exchange != "" {
		m.Exchange = sql.NullString{String: exchange, Valid: true}
	}
	if err := model.InsertOrUpdateMapping(s.db, m); err != nil {
		logger.L.Warn("Failed to cache ISIN mapping", "isin", isin, "error", err)
	}
}

// --- institution site scraping ---

func (s *resolverServiceImpl) fetchText(rawURL string, accept, referer string) (string, error) {
	s.limiter.Wait(context.Background())
	req, err := http.NewRequest("GET", rawURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", accept)
	req.Header.Set("Referer", referer)
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("status %d from %s", resp.StatusCode, rawURL)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (s *resolverServiceImpl) searchResultPages(isin string) []string {
	q := url.QueryEscape(isin)
	return []string{
		s.baseURL + "/web/suche?search=" + q,
		s.baseURL + "/web/suche?q=" + q,
		s.baseURL + "/web/search?search=" + q,
		s.baseURL + "/web/search?q=" + q,
		s.baseURL + "/web/suchergebnis?search=" + q,
		s.baseURL + "/web/suchergebnis?q=" + q,
		s.baseURL + "/web/home?search=" + q,
	}
}

func (s *resolverServiceImpl) searchJSONEndpoints(isin string) []string {
	q := url.QueryEscape(isin)
	return []string{
		s.baseURL + "/web/suche/autocomplete?query=" + q,
		s.baseURL + "/web/search/autocomplete?query=" + q,
		s.baseURL + "/api/search?query=" + q,
		s.baseURL + "/o/search?query=" + q,
	}
}

// discoverSecurityURL walks the search surfaces of the institution site
// looking for a security detail page whose URL slug ends in the ISIN. The
// first name-ish text found near the ISIN is kept as a hint for when the
// detail page scrape fails.
func (s *resolverServiceImpl) discoverSecurityURL(isin string) (securityURL, source, nameHint string) {
	referer := s.baseURL + "/web/home"
	candidates := append(s.searchResultPages(isin), s.searchJSONEndpoints(isin)...)

	for _, candidate := range candidates {
		payload, err := s.fetchText(candidate, "text/html,application/json;q=0.9,*/*;q=0.8", referer)
		if err != nil {
			continue
		}
		if hint := s.extractNameHint(payload, isin); hint != "" && nameHint == "" {
			nameHint = hint
		}
		if u := s.extractSecurityURL(payload, isin); u != "" {
			return u, candidate, nameHint
		}
	}
	return "", "", nameHint
}

func (s *resolverServiceImpl) toAbsoluteURL(pathOrURL string) string {
	value := strings.TrimSpace(pathOrURL)
	if value == "" {
		return ""
	}
	if strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://") {
		return value
	}
	return s.baseURL + "/" + strings.TrimLeft(value, "/")
}

func (s *resolverServiceImpl) extractSecurityURL(payload, isin string) string {
	escaped := regexp.QuoteMeta(isin)
	host := regexp.QuoteMeta(strings.TrimPrefix(strings.TrimPrefix(s.baseURL, "https://"), "http://"))
	patterns := []string{
		`(?i)(/web/Wertpapier/[^"'<\s?#]*-` + escaped + `)`,
		`(?i)(https?://` + host + `/web/Wertpapier/[^"'<\s?#]*-` + escaped + `)`,
		`(?i)(https?:\\/\\/` + host + `\\/web\\/Wertpapier\\/[^"'\s?#]*-` + escaped + `)`,
		`(?i)(\\/web\\/Wertpapier\\/[^"'\s?#]*-` + escaped + `)`,
	}
	for _, pattern := range patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			continue
		}
		m := re.FindStringSubmatch(payload)
		if m == nil {
			continue
		}
		found := strings.ReplaceAll(html.UnescapeString(m[1]), `\/`, "/")
		found = strings.SplitN(found, "?", 2)[0]
		found = strings.SplitN(found, "#", 2)[0]
		return s.toAbsoluteURL(found)
	}
	return ""
}

func stripTags(text string) string {
	return utils.NormalizeName(tagRe.ReplaceAllString(text, " "))
}

// extractNameHint pulls a plausible display name out of a raw search payload:
// first JSON-style key/value pairs adjacent to the ISIN, then the nearest
// meaningful text line above an HTML occurrence of it.
func (s *resolverServiceImpl) extractNameHint(payload, isin string) string {
	escapedISIN := regexp.QuoteMeta(isin)
	for _, key := range []string{"title", "name", "label", "securityName", "instrumentName"} {
		patterns := []string{
			`(?i)"` + key + `"\s*:\s*"([^"\n]{3,200})"[^{}]{0,400}"` + escapedISIN + `"`,
			`(?i)"` + escapedISIN + `"[^{}]{0,400}"` + key + `"\s*:\s*"([^"\n]{3,200})"`,
		}
		for _, pattern := range patterns {
			re, err := regexp.Compile(pattern)
			if err != nil {
				continue
			}
			if m := re.FindStringSubmatch(payload); m != nil {
				name := s.cleanName(strings.ReplaceAll(m[1], `\/`, "/"))
				if s.acceptName(name, isin) {
					return name
				}
			}
		}
	}

	idx := strings.Index(strings.ToUpper(payload), isin)
	if idx < 0 {
		return ""
	}
	start := idx - 1400
	if start < 0 {
		start = 0
	}
	textBefore := stripTagsKeepLines(payload[start:idx])
	lines := strings.FieldsFunc(textBefore, func(r rune) bool { return r == '\n' || r == '\r' })
	stopWords := map[string]bool{"wertpapiere": true, "suche": true, "etf": true, "fonds": true, "aktie": true}
	var candidates []string
	for _, line := range lines {
		if c := strings.TrimSpace(line); len(c) > 6 {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) > 8 {
		candidates = candidates[len(candidates)-8:]
	}
	for i := len(candidates) - 1; i >= 0; i-- {
		if stopWords[strings.ToLower(candidates[i])] {
			continue
		}
		if name := s.cleanName(candidates[i]); s.acceptName(name, isin) {
			return name
		}
	}
	return ""
}

// stripTagsKeepLines removes markup but keeps line boundaries so the hint
// extraction can reason about "the text line above the ISIN".
func stripTagsKeepLines(text string) string {
	return tagRe.ReplaceAllString(text, "\n")
}

// scrapeNameFromPage extracts the display name from a security detail page:
// the h1 title attribute, the h1 body, the og:title meta tag, then the page
// title with the institution suffix removed.
func (s *resolverServiceImpl) scrapeNameFromPage(pageURL string) string {
	htmlText, err := s.fetchText(pageURL, "text/html,application/xhtml+xml", s.baseURL+"/web/home")
	if err != nil {
		logger.L.Warn("Security page fetch failed", "url", pageURL, "error", err)
		return ""
	}
	if m := h1TitleRe.FindStringSubmatch(htmlText); m != nil {
		return s.cleanName(m[1])
	}
	if m := h1BodyRe.FindStringSubmatch(htmlText); m != nil {
		return s.cleanName(stripTags(m[1]))
	}
	if m := ogTitleRe.FindStringSubmatch(htmlText); m != nil {
		return s.cleanName(m[1])
	}
	if m := pageTitleRe.FindStringSubmatch(htmlText); m != nil {
		return s.cleanName(titleTailRe.ReplaceAllString(strings.TrimSpace(m[1]), ""))
	}
	return ""
}

// --- identifier-mapping fallback (OpenFIGI) ---

type openFigiRequest struct {
	IDType  string `json:"idType"`
	IDValue string `json:"idValue"`
}

type openFigiResponse struct {
	Data []struct {
		Name                string `json:"name"`
		SecurityDescription string `json:"securityDescription"`
		Ticker              string `json:"ticker"`
	} `json:"data"`
	Error string `json:"error"`
}

func (s *resolverServiceImpl) openFigiName(isin string) (string, string) {
	body, err := json.Marshal([]openFigiRequest{{IDType: "ID_ISIN", IDValue: isin}})
	if err != nil {
		return "", ""
	}
	req, err := http.NewRequest("POST", s.openFigiURL, bytes.NewReader(body))
	if err != nil {
		return "", ""
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if s.openFigiKey != "" {
		req.Header.Set("X-OPENFIGI-APIKEY", s.openFigiKey)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		logger.L.Warn("OpenFIGI request failed", "isin", isin, "error", err)
		return "", ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		logger.L.Warn("OpenFIGI returned non-OK status", "isin", isin, "status", resp.StatusCode)
		return "", ""
	}

	var payload []openFigiResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", ""
	}
	if len(payload) == 0 || len(payload[0].Data) == 0 {
		return "", ""
	}
	first := payload[0].Data[0]
	candidate := first.Name
	if candidate == "" {
		candidate = first.SecurityDescription
	}
	if candidate == "" {
		candidate = first.Ticker
	}
	return s.cleanName(candidate), first.Ticker
}

// --- closing price chain ---

// closingPriceForDate runs the dated-close chain: the local daily price
// store first, then the institution's historical-prices endpoints, then the
// market-data daily bars as the final backstop. Requests older than the
// primary source's retention window short-circuit to the sentinel without
// any network traffic.
func (s *resolverServiceImpl) closingPriceForDate(isin, txnDate, securityURL string) (string, string) {
	if utils.DateOlderThan(txnDate, maxCloseAgeDays) {
		return utils.PriceUnavailable, ""
	}

	if ticker := s.mappedTicker(isin); ticker != "" {
		if price, currency, ok := s.storedCloseNear(ticker, txnDate); ok {
			return price, currency
		}
	}

	if securityURL == "" {
		if cached, err := model.GetMappingByISIN(s.db, isin); err == nil && cached != nil {
			securityURL = cached.SecurityURL
		}
	}
	if securityURL != "" {
		historyURL := historicalPricesURL(securityURL)
		if price, ok := s.findCloseViaAjax(historyURL, txnDate); ok {
			// The institution reports the price bare; currency stays unknown.
			return price, ""
		}
	}

	if ticker := s.tickerForISIN(isin); ticker != "" {
		if close, currency, err := s.prices.FindCloseNear(ticker, txnDate, closeSearchWindowDays); err == nil {
			return fmt.Sprintf("%.4f", close), utils.NormalizeCurrency(currency)
		} else {
			logger.L.Warn("Market-data close lookup failed", "isin", isin, "ticker", ticker, "date", txnDate, "error", err)
		}
	}

	return utils.PriceUnavailable, ""
}

// mappedTicker reads the cached ticker mapping without triggering any
// network lookup.
func (s *resolverServiceImpl) mappedTicker(isin string) string {
	if cached, err := model.GetMappingByISIN(s.db, isin); err == nil && cached != nil {
		return cached.TickerSymbol
	}
	return ""
}

// storedCloseNear serves a dated close from the daily price store: the exact
// date when cached, otherwise the nearest prior close within the search
// window. Valuation-event prefetching keeps this store warm, so resolved
// dates usually never reach the network.
func (s *resolverServiceImpl) storedCloseNear(ticker, date string) (string, string, bool) {
	row, err := model.GetPrice(s.db, ticker, date)
	if err != nil || row == nil {
		latest, lerr := model.GetLatestPriceOnOrBefore(s.db, ticker, date)
		if lerr != nil || latest == nil {
			return "", "", false
		}
		want, werr := time.Parse("2006-01-02", date)
		got, gerr := time.Parse("2006-01-02", latest.Date)
		if werr != nil || gerr != nil || want.Sub(got) > closeSearchWindowDays*24*time.Hour {
			return "", "", false
		}
		row = latest
	}
	return fmt.Sprintf("%.4f", row.Price), utils.NormalizeCurrency(row.Currency), true
}

func (s *resolverServiceImpl) tickerForISIN(isin string) string {
	if cached, err := model.GetMappingByISIN(s.db, isin); err == nil && cached != nil && cached.TickerSymbol != "" {
		return cached.TickerSymbol
	}
	symbol, exchange, currency, shortName, err := s.prices.SearchByIdentifier(isin)
	if err != nil || symbol == "" {
		return ""
	}
	meta := &models.SecurityMetadata{ISIN: isin, Name: s.cleanName(shortName), Source: "market-data-search"}
	if !s.acceptName(meta.Name, isin) {
		meta.Name = ""
	}
	s.storeMapping(isin, symbol, exchange, currency, meta)
	return symbol
}

func historicalPricesURL(securityURL string) string {
	base := strings.TrimRight(securityURL, "/")
	if strings.HasSuffix(base, "/Kurse-und-Handelsplaetze/Historische-Kurse") {
		return base
	}
	return base + "/Kurse-und-Handelsplaetze/Historische-Kurse"
}

// ajaxEndpoints lists the candidate history endpoints for one page index:
// configured templates first, then the known endpoint families.
func (s *resolverServiceImpl) ajaxEndpoints(historyURL string, page int) []string {
	p := fmt.Sprintf("%d", page)
	var candidates []string
	for _, t := range s.ajaxTmpls {
		candidates = append(candidates,
			strings.ReplaceAll(strings.ReplaceAll(t, "{history_url}", historyURL), "{page}", p))
	}
	candidates = append(candidates,
		historyURL+"/_jcr_content/historicalpricechanges.ajax.json?page="+p,
		historyURL+"/_jcr_content/historicalpricechanges.json?page="+p,
		historyURL+"/_jcr_content/historicalPrices.ajax.json?page="+p,
		historyURL+"/_jcr_content/historicalPrices.json?page="+p,
		historyURL+".ajax.json?page="+p,
		historyURL+".json?page="+p,
	)
	return candidates
}

// discoverAjaxTemplate scrapes the history page itself for an embedded AJAX
// endpoint and turns it into a {page} template.
func (s *resolverServiceImpl) discoverAjaxTemplate(historyURL string) string {
	htmlText, err := s.fetchText(historyURL, "text/html,application/xhtml+xml", s.baseURL+"/web/home")
	if err != nil {
		return ""
	}
	m := ajaxTemplateRe.FindStringSubmatch(htmlText)
	if m == nil {
		return ""
	}
	u := s.toAbsoluteURL(strings.ReplaceAll(html.UnescapeString(m[1]), `\/`, "/"))
	if strings.Contains(u, "{page}") {
		return u
	}
	if strings.Contains(u, "page=") {
		return pageParamRe.ReplaceAllString(u, "page={page}")
	}
	glue := "?"
	if strings.Contains(u, "?") {
		glue = "&"
	}
	return u + glue + "page={page}"
}

// findCloseViaAjax pages through the institution's history endpoints looking
// for the requested date. JSON payloads are walked structurally; non-JSON
// payloads are pattern-matched for a date+close pair. An exact date match
// wins immediately; otherwise the nearest prior close seen while paging is
// used.
func (s *resolverServiceImpl) findCloseViaAjax(historyURL, txnDate string) (string, bool) {
	referer := historyURL
	discovered := s.discoverAjaxTemplate(historyURL)

	bestPriorDate := ""
	bestPriorClose := 0.0

	consider := func(date string, close float64) (string, bool) {
		if date == txnDate {
			return fmt.Sprintf("%.4f", close), true
		}
		if date < txnDate && date > bestPriorDate {
			bestPriorDate, bestPriorClose = date, close
		}
		return "", false
	}

	for page := 1; page <= s.pageLimit; page++ {
		var pageURLs []string
		if discovered != "" {
			pageURLs = append(pageURLs, strings.ReplaceAll(discovered, "{page}", fmt.Sprintf("%d", page)))
		}
		pageURLs = append(pageURLs, s.ajaxEndpoints(historyURL, page)...)

		seen := make(map[string]bool)
		pageFoundAny := false
		for _, u := range pageURLs {
			if seen[u] {
				continue
			}
			seen[u] = true
			payload, err := s.fetchText(u, "application/json,text/html;q=0.9,*/*;q=0.8", referer)
			if err != nil {
				continue
			}
			pageFoundAny = true

			// JSON path first
			var decoded interface{}
			if err := json.Unmarshal([]byte(payload), &decoded); err == nil {
				found := false
				var result string
				walkJSONObjects(decoded, func(obj map[string]interface{}) bool {
					date, close, ok := closeFromJSONObject(obj)
					if !ok {
						return false
					}
					if r, exact := consider(date, close); exact {
						result, found = r, true
						return true
					}
					return false
				})
				if found {
					return result, true
				}
				continue
			}

			// Text fallback
			if date, close, ok := closeFromText(payload, txnDate); ok {
				if r, exact := consider(date, close); exact {
					return r, true
				}
			}
		}

		// No endpoint family responded at all: wrong family on page one is
		// tolerable, silence on a later page means we ran off the end.
		if page > 1 && !pageFoundAny {
			break
		}
	}

	if bestPriorDate != "" {
		return fmt.Sprintf("%.4f", bestPriorClose), true
	}
	return "", false
}

// walkJSONObjects visits every map nested anywhere in a decoded JSON value.
// The visitor returns true to stop the walk.
func walkJSONObjects(v interface{}, visit func(map[string]interface{}) bool) bool {
	switch t := v.(type) {
	case map[string]interface{}:
		if visit(t) {
			return true
		}
		for _, child := range t {
			if walkJSONObjects(child, visit) {
				return true
			}
		}
	case []interface{}:
		for _, child := range t {
			if walkJSONObjects(child, visit) {
				return true
			}
		}
	}
	return false
}

// closeFromJSONObject extracts a (date, close) pair from one payload object,
// tolerating the several key spellings the endpoints use.
func closeFromJSONObject(obj map[string]interface{}) (string, float64, bool) {
	var date string
	for _, k := range payloadDateKeys {
		if raw, ok := obj[k]; ok {
			if date = utils.ParseDate(fmt.Sprintf("%v", raw)); date != "" {
				break
			}
		}
	}
	if date == "" {
		return "", 0, false
	}
	for _, k := range payloadCloseKeys {
		raw, ok := obj[k]
		if !ok {
			continue
		}
		switch n := raw.(type) {
		case float64:
			return date, n, true
		case string:
			if f, ok := utils.ParseNumber(n); ok {
				return date, f, true
			}
		}
	}
	return "", 0, false
}

// closeFromText pattern-matches a date+close pair out of a payload that did
// not decode as JSON.
func closeFromText(payload, txnDate string) (string, float64, bool) {
	d := regexp.QuoteMeta(txnDate)
	patterns := []string{
		`(?i)` + d + `[^\n\r]{0,180}(?:close|closing|closePrice|price|nav|kurs|schlusskurs)"?\s*[:=]\s*"?([0-9]+(?:[.,][0-9]+)?)`,
		`(?i)(?:close|closing|closePrice|price|nav|kurs|schlusskurs)"?\s*[:=]\s*"?([0-9]+(?:[.,][0-9]+)?)[^\n\r]{0,180}` + d,
	}
	for _, pattern := range patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			continue
		}
		if m := re.FindStringSubmatch(payload); m != nil {
			if f, ok := utils.ParseNumber(m[1]); ok {
				return txnDate, f, true
			}
		}
	}
	return "", 0, false
}
