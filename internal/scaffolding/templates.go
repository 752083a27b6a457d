package scaffolding

// Starter files written by init, keyed by path relative to the source root.
var starterFiles = map[string]string{
	"index.html": `---
title: Home
---
<section class="hero">
  <h1>{{title}}</h1>
  <p>Edit <code>src/index.html</code> and save to reload.</p>
</section>
`,
	"layouts/default.html": `<!DOCTYPE html>
<html lang="en">
  <head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <title>{{title}}</title>
    <link rel="stylesheet" href="{{root}}css/style.min.css">
  </head>
  <body>
    {{> header}}
    <main>
      {{> body}}
    </main>
    <script src="{{root}}js/script.min.js"></script>
  </body>
</html>
`,
	"partials/header.html": `<header>
  <nav>
    <a href="{{root}}index.html"{{#ifpage "index"}} class="active"{{/ifpage}}>Home</a>
  </nav>
</header>
`,
	"scss/main.scss": `@import "variables";

body {
  margin: 0;
  font-family: $font-stack;
  color: $text;
}

.hero {
  padding: 4rem 2rem;
  display: flex;
  flex-direction: column;
  user-select: none;
}

nav a.active {
  font-weight: bold;
}
`,
	"scss/_variables.scss": `$font-stack: system-ui, -apple-system, sans-serif;
$text: #222;
`,
	"js/app.js": `document.addEventListener("DOMContentLoaded", function () {
  document.documentElement.classList.add("js");
});
`,
	"images/.gitkeep": "",
	"fonts/.gitkeep":  "",
}
