package web

const pageTemplates = `
{{define "header"}}<!doctype html>
<html lang="en">
<head><meta charset="utf-8"><title>{{.Title}} | HR Desk</title></head>
<body>
{{if .Session.Email}}<nav>
<a href="/">Dashboard</a> <a href="/profile">Profile</a> <a href="/leave">Leave</a>
{{if or (eq .Session.Role "ADMIN") (eq .Session.Role "HR") (eq .Session.Role "MANAGER")}}<a href="/leave/approvals">Approvals</a>{{end}}
{{if eq .Session.Role "ADMIN"}}<a href="/admin">Admin</a>{{end}}
<span>{{.Session.DisplayName}} ({{.Session.Role}})</span>
<form method="post" action="/signout"><button type="submit">Sign out</button></form>
</nav>
<p data-idle-seconds="{{.IdleSecs}}">Signed in{{if .Remembered}} and remembered on this device{{end}}.</p>
{{end}}<main>
{{end}}

{{define "footer"}}</main>
</body>
</html>
{{end}}

{{define "signin"}}{{template "header" .}}
<h1>Sign in</h1>
{{if .Error}}<p role="alert">{{.Error}}</p>{{end}}
<form method="post" action="{{.SignInPath}}">
<input type="hidden" name="from" value="{{.From}}">
<label>Email <input type="email" name="email" value="{{.Email}}" required></label>
<label>Password <input type="password" name="password" required></label>
<label><input type="checkbox" name="remember" value="true"> Remember me</label>
<button type="submit">Sign in</button>
</form>
{{template "footer" .}}{{end}}

{{define "home"}}{{template "header" .}}
<h1>Welcome, {{.Session.DisplayName}}</h1>
{{template "footer" .}}{{end}}

{{define "profile"}}{{template "header" .}}
<h1>{{.Title}}</h1>
<dl>
<dt>Name</dt><dd>{{.Session.DisplayName}}</dd>
<dt>Email</dt><dd>{{.Session.Email}}</dd>
<dt>Role</dt><dd>{{.Session.Role}}</dd>
</dl>
{{template "footer" .}}{{end}}

{{define "leave"}}{{template "header" .}}
<h1>{{.Title}}</h1>
{{template "footer" .}}{{end}}

{{define "approvals"}}{{template "header" .}}
<h1>{{.Title}}</h1>
{{template "footer" .}}{{end}}

{{define "admin"}}{{template "header" .}}
<h1>{{.Title}}</h1>
{{template "footer" .}}{{end}}
`
