package fd

import (
	"time"

	"github.com/gobeaver/beaver-kit/config"
)

// Config 保存从环境变量读取的描述符默认配置。
type Config struct {
	// 读写超时，使用 time.ParseDuration 格式，空字符串表示不限制。
	ReadTimeout  string `env:"FDSTREAM_READ_TIMEOUT"`
	WriteTimeout string `env:"FDSTREAM_WRITE_TIMEOUT"`

	// 描述符拒绝请求的模式时直接失败，而不是退回阻塞系统调用。
	StrictBlocking bool `env:"FDSTREAM_STRICT_BLOCKING,default:false"`

	// manager/buffer 使用的缓冲区大小。
	BufferSize int `env:"FDSTREAM_BUFFER_SIZE,default:8192"`
}

// GetConfig 返回从环境变量加载的配置
func GetConfig() (*Config, error) {
	cfg := &Config{}
	if err := config.Load(cfg, config.LoadOptions{Prefix: ""}); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Timeouts 解析配置中的读写超时。
func (c *Config) Timeouts() (read, write time.Duration, err error) {
	if read, err = parseTimeout(c.ReadTimeout); err != nil {
		return 0, 0, configError("read timeout", err)
	}
	if write, err = parseTimeout(c.WriteTimeout); err != nil {
		return 0, 0, configError("write timeout", err)
	}
	return read, write, nil
}

func parseTimeout(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		d = 0
	}
	return d, nil
}
