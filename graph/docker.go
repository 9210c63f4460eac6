package graph

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/client"
	"github.com/scottyhq/dinoSARaws/service"
	"github.com/scottyhq/dinoSARaws/service/log"
	"go.uber.org/zap/zapcore"
)

const dockerTailLines = 20

type dockerManager struct {
	Client         *client.Client
	Envs           []string
	VolumesToMount []string
	AuthConfig     string //encode base64
}

type DockerConfig struct {
	Envs             []string
	RegistryServer   string // "https://index.docker.io/v1/" for docker hub for example
	RegistryUserName string
	RegistryPassword string
	VolumesToMount   string // List of volumes to mount (comma separated)
}

// SetFlags configures flag for a docker config
// Returns dockerEnvs as string, comma sep.
//
// cfg := DockerConfig{}
// dockerEnvsStr := cfg.SetFlags()
//
// flag.Parse()
//
//	if *dockerEnvsStr != "" {
//			cfg.Envs = strings.Split(*dockerEnvsStr, ",")
//		}
func (cfg *DockerConfig) SetFlags() *string {
	flag.StringVar(&cfg.RegistryUserName, "docker-registry-username", "", "username to authentication on private registry")
	flag.StringVar(&cfg.RegistryPassword, "docker-registry-password", "", "password to authentication on private registry")
	flag.StringVar(&cfg.RegistryServer, "docker-registry-server", "", "address of server to authenticate on private registry")
	flag.StringVar(&cfg.VolumesToMount, "docker-mount-volumes", "", "list of volumes to mount on the docker (comma separated), e.g. the DEM directory")

	return flag.String("docker-envs", "", "docker variable env key white list (comma sep) ")
}

// DockerManager runs a command in a docker image
type DockerManager interface {
	// Process runs the image with args, workdir being mounted as the working directory.
	// Envs are filtered by the white list of the manager.
	Process(ctx context.Context, workdir, image string, args []string, envs []string) (log.Result, error)
}

func NewDockerManager(ctx context.Context, config DockerConfig) (DockerManager, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create new docker client: %w", err)
	}

	var encodedAuthLogin string
	if config.RegistryUserName != "" && config.RegistryPassword != "" && config.RegistryServer != "" {
		log.Logger(ctx).Info("register to container registry...")
		encodedAuthLogin, err = registry.EncodeAuthConfig(registry.AuthConfig{
			Username:      config.RegistryUserName,
			Password:      config.RegistryPassword,
			ServerAddress: config.RegistryServer,
		})
		if err != nil {
			return nil, fmt.Errorf("NewDockerManager: %w", err)
		}
	}

	d := dockerManager{
		Client:     cli,
		Envs:       config.Envs,
		AuthConfig: encodedAuthLogin,
	}
	if len(config.VolumesToMount) > 0 {
		d.VolumesToMount = strings.Split(config.VolumesToMount, ",")
	}

	if err := d.Ping(ctx, 5*time.Minute); err != nil {
		return nil, fmt.Errorf("NewDockerManager: %w", err)
	}

	return &d, nil
}

func (d *dockerManager) Ping(ctx context.Context, timeout time.Duration) error {
	var err error
	ctx, cnl := context.WithTimeout(ctx, timeout)
	defer cnl()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("failed to found docker daemon: %w", err)
		default:
			if _, err = d.Client.Ping(ctx); err == nil {
				log.Logger(ctx).Debug("docker daemon is started")
				return nil
			}
			log.Logger(ctx).Info("Waiting for docker daemon...")
			time.Sleep(5 * time.Second)
		}
	}
}

// Process implements DockerManager
func (d *dockerManager) Process(ctx context.Context, workdir, img string, args []string, envs []string) (log.Result, error) {
	res := log.Result{Args: append([]string{img}, args...), ExitCode: -1}
	if err := d.Ping(ctx, time.Minute); err != nil {
		return res, fmt.Errorf("Process: %w", err)
	}

	imageInfo, err := d.localImageInfo(ctx, img)
	if err != nil {
		log.Logger(ctx).Info("pulling image " + img)
		if imageInfo, err = d.pullImage(ctx, img); err != nil {
			return res, fmt.Errorf("Process: %w", err)
		}
	}
	log.Logger(ctx).Debug(img + " pulled")

	var availableEnvs []string
	for _, env := range envs {
		for _, wlEnv := range d.Envs {
			if strings.HasPrefix(env, wlEnv) {
				availableEnvs = append(availableEnvs, env)
			}
		}
	}

	volumeToMount := []mount.Mount{{
		Type:   mount.TypeBind,
		Source: workdir,
		Target: workdir,
	}}
	for _, volume := range d.VolumesToMount {
		volumeToMount = append(volumeToMount, mount.Mount{
			Type:     mount.TypeBind,
			Source:   volume,
			Target:   volume,
			ReadOnly: true,
		})
	}

	containerConfig := &container.Config{
		Image:        imageInfo.ID,
		Cmd:          args,
		AttachStdout: true,
		AttachStderr: true,
		WorkingDir:   workdir,
		Env:          availableEnvs,
	}
	hostConfig := &container.HostConfig{
		Mounts: volumeToMount,
	}

	createdContainer, err := d.Client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, "")
	if err != nil {
		return res, fmt.Errorf("failed to create %s container: %w", img, err)
	}
	defer func() {
		// ctx may be cancelled
		cctx := context.Background()
		if err := d.Client.ContainerStop(cctx, createdContainer.ID, container.StopOptions{}); err != nil {
			log.Logger(ctx).Sugar().Warnf("failed to stop container: %s", createdContainer.ID)
		}
		if err := d.Client.ContainerRemove(cctx, createdContainer.ID, container.RemoveOptions{}); err != nil {
			log.Logger(ctx).Sugar().Warnf("failed to remove container: %s", createdContainer.ID)
		}
	}()

	start := time.Now()
	res.ExitCode, res.Stdout, err = d.runContainer(ctx, createdContainer.ID)
	res.Duration = time.Since(start)
	if err != nil {
		return res, fmt.Errorf("failed to run %s container: %w", img, err)
	}
	return res, nil
}

func (d *dockerManager) pullImage(ctx context.Context, img string) (image.Summary, error) {
	imagePullRc, err := d.Client.ImagePull(ctx, img, image.PullOptions{
		RegistryAuth: d.AuthConfig,
	})
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "timeout") {
			err = service.MakeTemporary(err)
		}
		return image.Summary{}, fmt.Errorf("failed to pull image %s: %w", img, err)
	}

	defer imagePullRc.Close()
	imagePullb, err := io.ReadAll(imagePullRc)
	if err != nil {
		log.Logger(ctx).Sugar().Errorf("failed to read image pull information: %v", err)
	} else {
		log.Logger(ctx).Sugar().Debug(string(imagePullb))
	}
	return d.localImageInfo(ctx, img)
}

func (d *dockerManager) localImageInfo(ctx context.Context, img string) (image.Summary, error) {
	filter := filters.NewArgs()
	filter.Add("reference", img)

	images, err := d.Client.ImageList(ctx, image.ListOptions{
		All:     false,
		Filters: filter,
	})
	if err != nil {
		return image.Summary{}, service.MakeTemporary(fmt.Errorf("failed to list image %s: %w", img, err))
	}

	if len(images) < 1 {
		return image.Summary{}, service.MakeTemporary(fmt.Errorf("not found: %s", img))
	}

	return images[0], nil
}

// runContainer starts the container, logs its outputs and waits for its exit.
// Returns the exit code and the last lines of the logs
func (d *dockerManager) runContainer(ctx context.Context, containerID string) (int, []string, error) {
	if err := d.Client.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return -1, nil, fmt.Errorf("failed to start container: %w", err)
	}

	containerLogs, err := d.Client.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		return -1, nil, fmt.Errorf("failed to retrieve logs: %w", err)
	}

	filter := &PythonLogFilter{}
	logs := containerLogger{filter: filter}
	func() {
		defer containerLogs.Close()
		logs.logLines(ctx, containerLogs)
	}()

	statusCh, errCh := d.Client.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil {
			return -1, logs.tail, err
		}
	case exit := <-statusCh:
		if exit.StatusCode != 0 {
			return int(exit.StatusCode), logs.tail, filter.WrapError(fmt.Errorf("exit status %d", exit.StatusCode))
		}
		return 0, logs.tail, nil
	}
	return -1, logs.tail, nil
}

type containerLogger struct {
	filter LogFilter
	tail   []string
}

// logLines sends each line of the multiplexed stream sr to the logger
func (l *containerLogger) logLines(ctx context.Context, sr io.Reader) {
	r := bufio.NewReader(sr)
	insideTooLongLine := false
	for {
		line, err := r.ReadSlice('\n')
		if !insideTooLongLine && len(line) >= 8 {
			line = line[8:] // stream is multiplexed: remove header
		}
		if err == io.EOF {
			if !insideTooLongLine && len(line) > 0 {
				l.log(ctx, string(line))
			}
			return
		}
		if err != nil && err != bufio.ErrBufferFull {
			log.Logger(ctx).Sugar().Warnf("container logs: %v", err)
			return
		}
		if insideTooLongLine {
			if err == nil {
				//reset
				insideTooLongLine = false
			}
		} else {
			if err == bufio.ErrBufferFull {
				l.log(ctx, fmt.Sprintf("%s ...[Message clipped]", line))
				insideTooLongLine = true
			} else if len(line) > 0 {
				l.log(ctx, string(line))
			}
		}
	}
}

func (l *containerLogger) log(ctx context.Context, msg string) {
	msg = strings.TrimRight(msg, "\r\n")
	if l.tail = append(l.tail, msg); len(l.tail) > dockerTailLines {
		l.tail = l.tail[1:]
	}
	level := zapcore.DebugLevel
	if l.filter != nil {
		var ignore bool
		if msg, level, ignore = l.filter.Filter(msg, level); ignore {
			return
		}
	}
	if ce := log.Logger(ctx).Check(level, msg); ce != nil {
		ce.Write()
	}
}
