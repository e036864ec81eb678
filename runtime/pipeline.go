package runtime

import (
	"context"
	"errors"
	"strings"

	"github.com/pithecene-io/wptdiff/poll"
	"github.com/pithecene-io/wptdiff/types"
)

// launchTests starts one test per URL and records a handle for each.
// All launch envelopes are collected before any is checked, so a rejection
// leaves the already accepted tests running on the service.
func (o *Orchestrator) launchTests(ctx context.Context, st *runState) error {
	req := st.req
	base := o.launchOptions(req)

	envs, err := gather(len(req.URLs), func(i int) (types.Envelope, error) {
		opts := base
		opts.Label = o.labelFor(req, i)
		env, err := o.service.StartTest(ctx, req.URLs[i], opts)
		if err != nil {
			return types.Envelope{}, &LaunchError{URL: req.URLs[i], Err: err}
		}
		return env, nil
	})
	if err != nil {
		o.config.Collector.IncLaunchFailure()
		return err
	}

	tasks := make([]*types.TaskHandle, len(req.URLs))
	for i, env := range envs {
		pageURL := req.URLs[i]
		if env.Readiness() == types.Failed {
			o.config.Collector.IncLaunchFailure()
			return &LaunchError{URL: pageURL, StatusCode: env.StatusCode, StatusText: env.StatusText}
		}

		var launch types.LaunchData
		if err := env.DecodeData(&launch); err != nil {
			o.config.Collector.IncLaunchFailure()
			return &LaunchError{URL: pageURL, StatusCode: env.StatusCode, StatusText: env.StatusText, Err: err}
		}
		if launch.TestID == "" {
			o.config.Collector.IncLaunchFailure()
			return &LaunchError{URL: pageURL, StatusCode: env.StatusCode, StatusText: "response carries no test id"}
		}

		o.config.Collector.IncTestLaunched()
		tasks[i] = &types.TaskHandle{
			ID:     launch.TestID,
			URL:    pageURL,
			Label:  o.labelFor(req, i),
			State:  types.TaskLaunched,
			Launch: &launch,
		}
	}

	st.result.Tasks = tasks
	st.logger.Info("tests launched", map[string]any{
		"count": len(tasks),
		"ids":   taskIDs(tasks),
	})
	return nil
}

// waitComplete polls every test's status until all are complete and records
// the url->id and id->status mappings.
func (o *Orchestrator) waitComplete(ctx context.Context, st *runState) error {
	tasks := st.result.Tasks
	probes := make([]poll.Probe, len(tasks))
	for i, task := range tasks {
		task.State = types.TaskPolling
		testID := task.ID
		probes[i] = poll.Probe{
			ID: testID,
			Check: o.countPolls(func(ctx context.Context) (types.Envelope, error) {
				return o.service.GetStatus(ctx, testID)
			}),
		}
	}

	envs, err := poll.AwaitReady(ctx, probes, o.pollOptions(st))
	if err != nil {
		markFailed(tasks, err)
		return o.pollError(StageTests, err)
	}

	for i, env := range envs {
		task := tasks[i]
		detail, err := env.Detail()
		if err != nil {
			task.State = types.TaskFailed
			return &PollFailure{Stage: StageTests, ProbeID: task.ID, Err: err}
		}

		var status types.StatusData
		if err := env.DecodeData(&status); err != nil {
			task.State = types.TaskFailed
			return &PollFailure{Stage: StageTests, ProbeID: task.ID, Err: err}
		}
		id := firstNonEmpty(status.ID, task.ID)
		pageURL := firstNonEmpty(status.TestInfo.URL, task.URL)

		detail["webReportUrl"] = o.webReportURL(id)
		st.result.IDs[pageURL] = id
		st.result.Tests[id] = detail
		task.Detail = detail
		task.State = types.TaskComplete
	}

	st.logger.Info("tests complete", map[string]any{"count": len(tasks)})
	return nil
}

// fetchResults reads the full result detail of every completed test.
// It writes only st.result.Results.
func (o *Orchestrator) fetchResults(ctx context.Context, st *runState) error {
	tasks := st.result.Tasks
	details, err := gather(len(tasks), func(i int) (map[string]any, error) {
		testID := tasks[i].ID
		env, err := o.service.GetResults(ctx, testID)
		if err != nil {
			return nil, &ResultError{TestID: testID, Err: err}
		}
		if env.Readiness() == types.Failed {
			return nil, &ResultError{TestID: testID, StatusCode: env.StatusCode, StatusText: env.StatusText}
		}
		detail, err := env.Detail()
		if err != nil {
			return nil, &ResultError{TestID: testID, StatusCode: env.StatusCode, StatusText: env.StatusText, Err: err}
		}
		o.config.Collector.IncResultFetched()
		return detail, nil
	})
	if err != nil {
		return err
	}

	for i, detail := range details {
		id := tasks[i].ID
		if s, ok := detail["id"].(string); ok && s != "" {
			id = s
		}
		st.result.Results[id] = detail
	}

	st.logger.Debug("results fetched", map[string]any{"count": len(details)})
	return nil
}

// buildVideo creates the comparison video from all completed tests, then polls
// its JSON status URL until the player descriptor is ready.
// It writes only st.result.Video and st.result.Player.
func (o *Orchestrator) buildVideo(ctx context.Context, st *runState) error {
	ids := strings.Join(taskIDs(st.result.Tasks), ",")

	env, err := o.service.CreateVideo(ctx, ids, o.config.Video)
	if err != nil {
		o.config.Collector.IncVideoFailure()
		return &ArtifactError{Err: err}
	}
	if env.Readiness() == types.Failed {
		o.config.Collector.IncVideoFailure()
		return &ArtifactError{StatusCode: env.StatusCode, StatusText: env.StatusText}
	}

	var video types.VideoData
	if err := env.DecodeData(&video); err != nil {
		o.config.Collector.IncVideoFailure()
		return &ArtifactError{StatusCode: env.StatusCode, StatusText: env.StatusText, Err: err}
	}
	if video.JSONURL == "" {
		o.config.Collector.IncVideoFailure()
		return &ArtifactError{StatusCode: env.StatusCode, StatusText: "response carries no json url"}
	}
	videoDetail, err := env.Detail()
	if err != nil {
		o.config.Collector.IncVideoFailure()
		return &ArtifactError{Err: err}
	}
	o.config.Collector.IncVideoCreated()
	st.result.Video = videoDetail
	st.logger.Info("video requested", map[string]any{
		"video_id": video.ID(),
		"json_url": video.JSONURL,
	})

	statusURL := video.JSONURL
	probeID := "video-" + firstNonEmpty(video.ID(), "player")
	playerEnv, err := poll.Await(ctx, poll.Probe{
		ID: probeID,
		Check: o.countPolls(func(ctx context.Context) (types.Envelope, error) {
			return o.service.FetchJSON(ctx, statusURL)
		}),
	}, o.pollOptions(st))
	if err != nil {
		return o.pollError(StageVideo, err)
	}

	player, err := playerEnv.Detail()
	if err != nil {
		return &PollFailure{Stage: StageVideo, ProbeID: probeID, Err: err}
	}
	o.config.Collector.IncPlayerFetched()
	st.result.Player = player
	st.logger.Info("video ready", map[string]any{"video_id": video.ID()})
	return nil
}

// countPolls wraps a check so every invocation is counted.
func (o *Orchestrator) countPolls(check poll.CheckFunc) poll.CheckFunc {
	return func(ctx context.Context) (types.Envelope, error) {
		o.config.Collector.IncStatusPoll()
		return check(ctx)
	}
}

// pollError converts a poll error into the pipeline's error kinds.
// Context cancellation passes through unwrapped so callers can match it.
func (o *Orchestrator) pollError(stage Stage, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	o.config.Collector.IncPollFailure()
	return &PollFailure{Stage: stage, ProbeID: failedProbe(err), Err: err}
}

// failedProbe extracts the id of the probe that ended a poll call.
func failedProbe(err error) string {
	var failed *poll.FailedError
	var probeErr *poll.ProbeError
	var exhausted *poll.ExhaustedError
	switch {
	case errors.As(err, &failed):
		return failed.ProbeID
	case errors.As(err, &probeErr):
		return probeErr.ProbeID
	case errors.As(err, &exhausted):
		return exhausted.ProbeID
	}
	return ""
}

// markFailed moves the task whose probe failed to TaskFailed.
func markFailed(tasks []*types.TaskHandle, err error) {
	probeID := failedProbe(err)
	if probeID == "" {
		return
	}
	for _, task := range tasks {
		if task.ID == probeID {
			task.State = types.TaskFailed
		}
	}
}

func taskIDs(tasks []*types.TaskHandle) []string {
	ids := make([]string, len(tasks))
	for i, task := range tasks {
		ids[i] = task.ID
	}
	return ids
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
