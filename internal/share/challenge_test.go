package share

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseValidationAction_Form(t *testing.T) {
	page := `<html><body>
		<p>Checking your browser...</p>
		<form id="v" action="/verify" method="post">
			<input type="hidden" name="token" value="abc">
			<input type="hidden" name="ts" value="1700000000">
			<input type="submit" value="go">
		</form>
	</body></html>`

	action, ok := ParseValidationAction(page)
	require.True(t, ok)
	assert.Equal(t, "/verify", action.URL)
	assert.Equal(t, http.MethodPost, action.Method)
	assert.Equal(t, "abc", action.Fields.Get("token"))
	assert.Equal(t, "1700000000", action.Fields.Get("ts"))
	assert.NotContains(t, action.Fields, "")
}

func TestParseValidationAction_FormDefaultsToGet(t *testing.T) {
	action, ok := ParseValidationAction(`<form action="https://x.example/ok"><input name="a" value="1"></form>`)
	require.True(t, ok)
	assert.Equal(t, http.MethodGet, action.Method)
	assert.Equal(t, "https://x.example/ok", action.URL)
}

func TestParseValidationAction_AjaxScript(t *testing.T) {
	page := `<html><head><script type="text/javascript">
		var ajaxdata = '?ctdf';
		var pdownload = "sig-42";
		function down_p(){
			$.ajax({
				type : 'post',
				url : '/ajaxm.php',
				data : { 'action':'downprocess','sign':ajaxdata,'p':pdownload,'ves':1,'websign':'' },
				dataType : 'json',
				success:function(msg){ location.href = msg.dom + msg.url; }
			});
		}
	</script></head><body onload="down_p()"></body></html>`

	action, ok := ParseValidationAction(page)
	require.True(t, ok)
	assert.Equal(t, "/ajaxm.php", action.URL)
	assert.Equal(t, http.MethodPost, action.Method)
	assert.Equal(t, "downprocess", action.Fields.Get("action"))
	assert.Equal(t, "?ctdf", action.Fields.Get("sign"))
	assert.Equal(t, "sig-42", action.Fields.Get("p"))
	assert.Equal(t, "1", action.Fields.Get("ves"))
	assert.Contains(t, action.Fields, "websign")
}

func TestParseValidationAction_None(t *testing.T) {
	pages := []string{
		"",
		"<html><body>Access denied</body></html>",
		`<form method="post"><input name="a" value="b"></form>`,
		`<script>console.log("no call here")</script>`,
		`<script>$.ajax({ type: 'post', data: {'a': 1} });</script>`,
	}

	for _, page := range pages {
		_, ok := ParseValidationAction(page)
		assert.False(t, ok, "page %q", page)
	}
}

func TestIsChallenge(t *testing.T) {
	tests := []struct {
		contentType string
		expected    bool
	}{
		{"text/html", true},
		{"text/html; charset=utf-8", true},
		{"TEXT/HTML", true},
		{"application/octet-stream", false},
		{"application/json", false},
		{"", false},
	}

	for _, test := range tests {
		h := http.Header{}
		h.Set("Content-Type", test.contentType)
		assert.Equal(t, test.expected, IsChallenge(h), "content type %q", test.contentType)
	}
}
