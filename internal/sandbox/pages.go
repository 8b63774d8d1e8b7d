package sandbox

import "html/template"

var layout = template.Must(template.New("layout").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
{{template "content" .}}
</body>
</html>`))

var demoPage = template.Must(template.Must(layout.Clone()).Parse(`{{define "content"}}
<header id="header">
  <form id="searchbox" method="get" action="{{.Action}}">
    <input type="hidden" name="controller" value="search">
    <input class="search_query form-control" type="text" id="search_query_top" name="search_query" value="">
    <button type="submit" name="submit_search" class="btn btn-default button-search"><span>Search</span></button>
  </form>
</header>
<main id="center_column">
{{if .Searched}}
  <h1 class="page-heading product-listing">Search&nbsp;<span class="lighter">"{{.Query}}"</span><span class="heading-counter">{{.Counter}}</span></h1>
  {{if not .Query}}<p class="alert alert-warning">Please enter a search keyword</p>{{end}}
  <ul class="product_list">
  {{range .Products}}<li class="ajax_block_product"><a class="product-name" href="#">{{.Name}}</a></li>
  {{end}}</ul>
{{else}}
  <h1 class="page-heading">Popular</h1>
{{end}}
</main>
{{end}}`))

var storefrontHome = template.Must(template.Must(layout.Clone()).Parse(`{{define "content"}}
<nav class="header-links">
  <a href="{{.Base}}customer/account/login/">SIGN IN</a>
  <a href="{{.Base}}customer/account/create/">CREATE ACCOUNT</a>
</nav>
<main><h1>New In</h1></main>
{{end}}`))

var storefrontCreate = template.Must(template.Must(layout.Clone()).Parse(`{{define "content"}}
<form id="form-validate" method="post" action="{{.Base}}customer/account/createpost/">
  <label for="prefix">Title</label>
  <select id="prefix" name="prefix">
  {{range .Titles}}<option value="{{.}}">{{.}}</option>
  {{end}}</select>
  <label for="firstname">First Name</label>
  <input type="text" id="firstname" name="firstname" value="">
  <label for="lastname">Last Name</label>
  <input type="text" id="lastname" name="lastname" value="">
  <label for="email_address">Email</label>
  <input type="email" id="email_address" name="email" value="">
  <button type="submit" class="action submit primary">Create an Account</button>
</form>
{{end}}`))

var storefrontCreated = template.Must(template.Must(layout.Clone()).Parse(`{{define "content"}}
<div class="message-success success message">Thank you for registering with Alexandra, {{.FirstName}}.</div>
{{end}}`))
