// Package lib groups integrations that do not belong to a single layer:
// background jobs on asynq, transactional email on Resend and uploaded
// file storage.
package lib
