// Package internal contains the implementation packages of the sitekit CLI.
//
// # Package Organization
//
// The internal packages are organized by functional domain:
//
//   - config: Path layout and settings, loaded through viper
//   - fileset: Glob compilation, matching and expansion over afero
//   - tasks: Named tasks, series and parallel composition, metrics
//   - build: The category tasks (clean, html, styles, scripts, images, fonts)
//   - renderer: Handlebars layouts, partials and front matter
//   - watcher: File system monitoring with debouncing
//   - server: Static file server with websocket live reload
//   - services: Wires the pipeline, task graph, watcher and server together
//   - notify: Desktop notifications for failed watch runs
//   - scaffolding: Starter tree and configuration file for init
//   - errors: Build errors, the per-task collector and the browser overlay
//   - logging: Structured logging on top of slog
//   - version: Build stamp reported by the version command
//
// # Data Flow
//
// A task run reads sources through fileset, hands bytes to a library
// transform and writes under its category's output directory. The pipeline
// records the outcome in the error collector and emits an event; the server
// turns events into reload, stylesheet or error messages for the browser.
// During watch, the watcher maps changed paths to category tasks and re-runs
// them one at a time per task.
package internal
