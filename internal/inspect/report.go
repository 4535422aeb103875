package inspect

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"strings"
)

// Placeholders rendered when no bearer token was sent
const (
	TokenNotProvided = "Not provided"
	DecodedNotAvail  = "N/A"
)

// Report is the inspection result for a single request
type Report struct {
	Request Request

	// Token is the raw bearer token or TokenNotProvided
	Token string

	// Decoded is the indented claims, a FailureReason or DecodedNotAvail
	Decoded string
}

// NewReport builds a report for req, decoding its bearer token if one was sent
func NewReport(req Request) Report {
	report := Report{
		Request: req,
		Token:   TokenNotProvided,
		Decoded: DecodedNotAvail,
	}

	token, ok := req.BearerToken()
	if !ok {
		return report
	}
	report.Token = token

	claims, err := Decode(token)
	if err != nil {
		var reason FailureReason
		if errors.As(err, &reason) {
			report.Decoded = string(reason)
		} else {
			report.Decoded = string(ReasonDecodeFailed)
		}
		return report
	}
	report.Decoded = claims.String()
	return report
}

// HeaderBlock joins the headers as "Name: value" lines
func (r Report) HeaderBlock() string {
	lines := make([]string, 0, len(r.Request.Headers))
	for _, h := range r.Request.Headers {
		lines = append(lines, fmt.Sprintf("%s: %s", h.Name, h.Value))
	}
	return strings.Join(lines, "\n")
}

var reportTemplate = template.Must(template.New("report").Parse(`<html>
<head><style>body { font-family: Arial; margin: 20px; } pre { background: #f4f4f4; padding: 10px; overflow-x: auto; }</style></head>
<body>
<h1>HTTP Request Details</h1>
<h2>Request Information</h2>
<p><strong>Method:</strong> {{.Request.Method}}</p>
<p><strong>Protocol:</strong> {{.Request.Protocol}}</p>
<p><strong>Path:</strong> {{.Request.Path}}</p>
<p><strong>QueryString:</strong> {{.Request.QueryString}}</p>
<h2>Headers</h2>
<pre>{{.HeaderBlock}}</pre>
<h2>Bearer Token</h2>
<p><strong>Token:</strong> {{.Token}}</p>
<p><strong>Decoded:</strong></p>
<pre>{{.Decoded}}</pre>
</body>
</html>
`))

// Render writes the report as an HTML document
func (r Report) Render() ([]byte, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, r); err != nil {
		return nil, fmt.Errorf("failed to render report: %w", err)
	}
	return buf.Bytes(), nil
}
