package sso

import (
	"bytes"
	"html/template"
	"net/url"
)

const pageStyle = `
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Oxygen-Sans, Ubuntu, Cantarell, "Helvetica Neue", sans-serif;
            background: linear-gradient(135deg, #667eea 0%, #764ba2 100%);
            min-height: 100vh;
            display: flex;
            align-items: center;
            justify-content: center;
            padding: 20px;
        }
        .container {
            background: white;
            border-radius: 12px;
            box-shadow: 0 20px 60px rgba(0, 0, 0, 0.3);
            max-width: 480px;
            width: 100%;
            padding: 40px;
            text-align: center;
        }
        .icon {
            width: 64px;
            height: 64px;
            border-radius: 50%;
            display: flex;
            align-items: center;
            justify-content: center;
            margin: 0 auto 20px;
            font-size: 32px;
        }
        h1 { font-size: 24px; color: #333; margin-bottom: 12px; }
        .message { color: #666; font-size: 16px; line-height: 1.6; margin-bottom: 30px; }`

var errorPageTmpl = template.Must(template.New("sso_error").Parse(`<!DOCTYPE html>
<html lang="en-US">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <title>Authentication Failed - {{.SiteName}}</title>
    <style>` + pageStyle + `
        .icon { background: #fee; }
        .error-details {
            background: #fee;
            border-left: 4px solid #c33;
            padding: 15px;
            margin-bottom: 30px;
            text-align: left;
            border-radius: 4px;
        }
        .error-details strong { color: #c33; display: block; margin-bottom: 8px; }
        .buttons { display: flex; gap: 12px; flex-wrap: wrap; justify-content: center; }
        .button { display: inline-block; padding: 12px 24px; text-decoration: none; border-radius: 6px; font-weight: 500; }
        .button-primary { background: #667eea; color: white; }
        .button-secondary { background: #f1f1f1; color: #333; }
    </style>
</head>
<body>
    <div class="container">
        <div class="icon">❌</div>
        <h1>Authentication Failed</h1>
        <p class="message">We couldn't log you in automatically.</p>
        <div class="error-details">
            <strong>Error Details:</strong>
            {{.Message}}
        </div>
        <div class="buttons">
            <a href="{{.LoginURL}}" class="button button-primary">Login Manually</a>
            <a href="{{.HomeURL}}" class="button button-secondary">Go to Homepage</a>
        </div>
    </div>
</body>
</html>`))

var successPageTmpl = template.Must(template.New("sso_success").Parse(`<!DOCTYPE html>
<html lang="en-US">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <meta http-equiv="refresh" content="2;url={{.RedirectURL}}">
    <title>Login Successful - {{.SiteName}}</title>
    <style>` + pageStyle + `
        .icon { background: #d4edda; }
        .loader {
            width: 40px;
            height: 40px;
            border: 4px solid #f3f3f3;
            border-top: 4px solid #667eea;
            border-radius: 50%;
            animation: spin 1s linear infinite;
            margin: 20px auto;
        }
        @keyframes spin { 0% { transform: rotate(0deg); } 100% { transform: rotate(360deg); } }
        .redirect-message { color: #999; font-size: 14px; }
        .redirect-message a { color: #667eea; text-decoration: none; font-weight: 500; }
    </style>
</head>
<body>
    <div class="container">
        <div class="icon">✓</div>
        <h1>Welcome back, {{.Username}}!</h1>
        <p class="message">You have been successfully authenticated.</p>
        <div class="loader"></div>
        <p class="redirect-message">
            Redirecting you now...<br>
            <small>If you're not redirected, <a href="{{.RedirectURL}}">click here</a>.</small>
        </p>
    </div>
    <script>
        setTimeout(function() {
            window.location.href = {{.RedirectURL}};
        }, 2000);
    </script>
</body>
</html>`))

var buttonTmpl = template.Must(template.New("sso_button").Parse(
	`<a href="{{.URL}}" class="{{.Class}}" rel="nofollow">{{.Text}}</a>`))

/* ErrorPage 失败页参数 */
type ErrorPage struct {
	SiteName string
	Message  string
	LoginURL string
	HomeURL  string
}

/* SuccessPage 成功页参数 */
type SuccessPage struct {
	SiteName    string
	Username    string
	RedirectURL string
}

/* RenderErrorPage 渲染失败页，Message 会被转义 */
func RenderErrorPage(p ErrorPage) ([]byte, error) {
	var buf bytes.Buffer
	if err := errorPageTmpl.Execute(&buf, p); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

/* RenderSuccessPage 渲染成功页：2 秒后经 meta refresh 与脚本双重跳转 */
func RenderSuccessPage(p SuccessPage) ([]byte, error) {
	if p.Username == "" {
		p.Username = "User"
	}
	var buf bytes.Buffer
	if err := successPageTmpl.Execute(&buf, p); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

/* ButtonOptions 登录按钮属性 */
type ButtonOptions struct {
	Text     string
	Redirect string
	Class    string
}

/*
ButtonURL 提供方生成令牌的地址
功能：携带当前站点地址与登录后的跳转地址
*/
func (r *Resolver) ButtonURL(redirect string) string {
	q := "site=" + url.QueryEscape(r.site.URL())
	if redirect != "" {
		q += "&redirect_to=" + url.QueryEscape(redirect)
	}
	return r.ProviderBase() + "/generate-sso-token?" + q
}

/* Button 渲染登录按钮，本身不做任何认证 */
func (r *Resolver) Button(opts ButtonOptions) (template.HTML, error) {
	if opts.Text == "" {
		opts.Text = "Login with SSO"
	}
	if opts.Redirect == "" {
		opts.Redirect = r.site.AdminURL()
	}
	if opts.Class == "" {
		opts.Class = "sas-sso-button"
	}
	var buf bytes.Buffer
	err := buttonTmpl.Execute(&buf, struct {
		URL, Class, Text string
	}{r.ButtonURL(opts.Redirect), opts.Class, opts.Text})
	if err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}
