package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"
	"proxyprobe/internal/shared/types"
)

// LoadIni 把 ini 文件映射到 cfg 上，文件中缺失的键保留 cfg 里已有的默认值。
func LoadIni(cfg *types.Config, fileName string) error {
	iniFile, err := ini.Load(fileName)
	if err != nil {
		return err
	}
	if err := iniFile.MapTo(cfg); err != nil {
		return err
	}
	ApplyEnv(cfg)
	return nil
}

// ApplyEnv 用环境变量覆盖配置。
func ApplyEnv(cfg *types.Config) {
	overrideFromEnvInt(&cfg.CheckerConf.MaxConcurrent, "PROXYPROBE_MAX_CONCURRENT")
	overrideFromEnvString(&cfg.CheckerConf.TestURL, "PROXYPROBE_TEST_URL")
}

// LoadSourceURLs 读取列表源文件，每行一个 URL，忽略空行。
func LoadSourceURLs(fileName string) ([]string, error) {
	file, err := os.Open(fileName)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("source list file %s not found", fileName)
		}
		return nil, fmt.Errorf("failed to open source list file: %w", err)
	}
	defer file.Close()

	var urls []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read source list file %s: %w", fileName, err)
	}
	return urls, nil
}

func overrideFromEnvInt(target *int, envName string) {
	envValue := os.Getenv(envName)
	if envValue != "" {
		if intValue, err := strconv.Atoi(envValue); err == nil {
			*target = intValue
		}
	}
}

func overrideFromEnvString(target *string, envName string) {
	if envValue := os.Getenv(envName); envValue != "" {
		*target = envValue
	}
}
