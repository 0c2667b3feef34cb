// Package http provides the JSON API handlers, middleware and realtime
// notification stream for orgdesk.
//
// Every endpoint lives under /api and answers with the envelope
// {"success":true,"data":...,"message":...,"count":...} or
// {"success":false,"message":...,"errors":{...}}. The router exposes:
//   - POST /api/auth/login, POST /api/auth/refresh, POST /api/auth/logout,
//     GET /api/auth/me: session lifecycle. The token is returned in the body,
//     the `X-Session-Token` header and a `session_token` cookie.
//   - /api/employees: administrator controlled employee accounts.
//   - /api/assets: inventory CRUD, POST /api/assets/assign and
//     POST /api/assets/return for quantity reservation, history, holdings,
//     GET /api/assets/stats and GET /api/assets/analytics/detailed.
//   - /api/leaves: apply, my-leaves, all, status decisions and cancellation.
//   - /api/attendance: personal and supervised listings, manual marking,
//     justification, statistics, and the device endpoints that accept a device
//     JWT instead of a session.
//   - /api/notifications: recipient listing and read state, plus
//     GET /api/notifications/stream for the websocket feed.
//   - /api/todos, /api/feedback, /api/audit-logs, /api/settings and
//     GET /api/system/outbox.
//
// Request and response DTOs live alongside their handlers so tests and
// documentation share the same ground truth.
package http
