// Package services defines the business logic for the widget sample resource.
// This file centralizes common service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer; translation
// into the user-facing failure taxonomy (HTTP statuses and safe messages) is
// performed at the handler layer.
package services

import "errors"

var (
	// ErrWidgetNotFound indicates that the requested widget does not exist.
	ErrWidgetNotFound = errors.New("widget not found")

	// ErrEmptyName is returned when a widget is created or updated with an
	// empty name.
	ErrEmptyName = errors.New("widget name is empty")

	// ErrNameTooLong is returned when a widget name exceeds the maximum
	// allowed length.
	ErrNameTooLong = errors.New("widget name too long")

	// ErrInvalidSlug is returned when a slug is not lowercase alphanumeric
	// with single hyphen separators.
	ErrInvalidSlug = errors.New("slug must be lowercase letters, digits and hyphens")

	// ErrAlreadyPublished is returned when publish is requested for a widget
	// that is already published.
	ErrAlreadyPublished = errors.New("widget already published")
)
