package share

import (
	"errors"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ErrChallengeParse is returned when a challenge page carries no usable
// validation action, or the validation does not yield a direct URL.
var ErrChallengeParse = errors.New("challenge parse error")

// Action is the validation request embedded in a challenge page
type Action struct {
	URL    string
	Method string
	Fields url.Values
}

var (
	ajaxCallRe  = regexp.MustCompile(`(?s)ajax\s*\(\s*\{(.*?)\}\s*\)`)
	ajaxDataRe  = regexp.MustCompile(`(?s)\bdata\s*:\s*\{(.*?)\}`)
	ajaxURLRe   = regexp.MustCompile(`\burl\s*:\s*['"]([^'"]+)['"]`)
	ajaxTypeRe  = regexp.MustCompile(`\b(?:type|method)\s*:\s*['"]([A-Za-z]+)['"]`)
	dataPairRe  = regexp.MustCompile(`['"]?([\w-]+)['"]?\s*:\s*(?:'([^']*)'|"([^"]*)"|(-?\d+(?:\.\d+)?)|([A-Za-z_$][\w$]*))`)
	scriptVarRe = regexp.MustCompile(`\b(?:var|let|const)\s+([A-Za-z_$][\w$]*)\s*=\s*(?:'([^']*)'|"([^"]*)"|(-?\d+(?:\.\d+)?))`)
)

// ParseValidationAction extracts the validation request from a challenge page.
// A <form> with an action wins; otherwise the first inline ajax({...}) call is used.
func ParseValidationAction(page string) (*Action, bool) {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return nil, false
	}

	if action := findForm(doc); action != nil {
		return action, true
	}

	for _, script := range scriptTexts(doc) {
		if action := parseAjaxCall(script); action != nil {
			return action, true
		}
	}
	return nil, false
}

func findForm(n *html.Node) *Action {
	if n.Type == html.ElementNode && n.DataAtom == atom.Form {
		target := attr(n, "action")
		if target == "" {
			return nil
		}
		method := strings.ToUpper(attr(n, "method"))
		if method == "" {
			method = http.MethodGet
		}
		action := &Action{URL: target, Method: method, Fields: url.Values{}}
		collectInputs(n, action.Fields)
		return action
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if action := findForm(c); action != nil {
			return action
		}
	}
	return nil
}

func collectInputs(n *html.Node, fields url.Values) {
	if n.Type == html.ElementNode && n.DataAtom == atom.Input {
		if name := attr(n, "name"); name != "" {
			fields.Add(name, attr(n, "value"))
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectInputs(c, fields)
	}
}

func scriptTexts(n *html.Node) []string {
	var out []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Script {
			var b strings.Builder
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.TextNode {
					b.WriteString(c.Data)
				}
			}
			out = append(out, b.String())
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func parseAjaxCall(script string) *Action {
	call := ajaxCallRe.FindStringSubmatch(script)
	if call == nil {
		return nil
	}
	body := call[1]

	fields := url.Values{}
	if data := ajaxDataRe.FindStringSubmatchIndex(body); data != nil {
		vars := scriptVars(script)
		for _, pair := range dataPairRe.FindAllStringSubmatch(body[data[2]:data[3]], -1) {
			fields.Add(pair[1], pairValue(pair, vars))
		}
		body = body[:data[0]] + body[data[1]:]
	}

	target := ajaxURLRe.FindStringSubmatch(body)
	if target == nil {
		return nil
	}
	method := http.MethodGet
	if m := ajaxTypeRe.FindStringSubmatch(body); m != nil {
		method = strings.ToUpper(m[1])
	}
	return &Action{URL: target[1], Method: method, Fields: fields}
}

// pairValue returns the literal value of a data pair, looking identifiers up
// in the script's variable declarations. Unknown identifiers yield "".
func pairValue(pair []string, vars map[string]string) string {
	ident := pair[5]
	switch ident {
	case "":
		return pair[2] + pair[3] + pair[4]
	case "true", "false":
		return ident
	default:
		return vars[ident]
	}
}

func scriptVars(script string) map[string]string {
	vars := make(map[string]string)
	for _, m := range scriptVarRe.FindAllStringSubmatch(script, -1) {
		vars[m[1]] = m[2] + m[3] + m[4]
	}
	return vars
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}
