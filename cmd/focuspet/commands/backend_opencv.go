//go:build opencv

package commands

import _ "github.com/bryanchriswhite/focuspet/internal/capture/opencv"
