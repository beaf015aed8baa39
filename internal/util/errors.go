package util

import "errors"

var (
	ErrUserNotFound     = errors.New("用户不存在")
	ErrEmailRegistered  = errors.New("该邮箱已被注册")
	ErrPermissionDenied = errors.New("permission denied")
	ErrCourseNotFound   = errors.New("course not found")
	ErrChapterNotFound  = errors.New("chapter not found")
	ErrCourseGenerating = errors.New("course generation already in progress")
	ErrNoVideoFound     = errors.New("no suitable video found")
)
