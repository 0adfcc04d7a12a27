package main

import (
	"context"

	"github.com/trezcool/huddle/core"
	"github.com/trezcool/huddle/core/video"
)

func (cli *commandLine) syncVideos(ctx context.Context, channelID string) (video.SyncResult, error) {
	return cli.videoSvc.Sync(ctx, core.CleanString(channelID))
}
