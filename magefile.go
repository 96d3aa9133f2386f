//go:build mage
// +build mage

package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const reportDir = "./reports"

// Default 默认任务：显示帮助信息
func Default() {
	fmt.Println("cachecore 构建系统")
	fmt.Println("==================")
	fmt.Println("可用任务:")
	fmt.Println("  mage build        - 构建 cachebench 与 cacheserver")
	fmt.Println("  mage test         - 运行所有测试")
	fmt.Println("  mage testUnit     - 运行单元测试（-short）")
	fmt.Println("  mage testRace     - 以竞态检测运行测试")
	fmt.Println("  mage bench        - 运行基准测试")
	fmt.Println("  mage workload     - 用 cachebench 对比全部淘汰策略")
	fmt.Println("  mage docker:influx - 启动本地 InfluxDB")
	fmt.Println("  mage docker:down  - 停止本地 InfluxDB")
	fmt.Println("  mage clean        - 清理构建产物")
	fmt.Println("  mage lint         - 运行代码检查")
	fmt.Println("  mage coverage     - 生成测试覆盖率报告")
}

// Build 构建所有二进制文件
func Build() error {
	mg.Deps(Clean)

	targets := []struct {
		name string
		path string
	}{
		{"cachebench", "./cmd/cachebench"},
		{"cacheserver", "./cmd/cacheserver"},
	}

	fmt.Println("🚀 开始构建 cachecore 组件...")

	for _, target := range targets {
		fmt.Printf("📦 构建 %s...\n", target.name)
		output := filepath.Join("./dist", target.name)
		if runtime.GOOS == "windows" {
			output += ".exe"
		}

		cmd := exec.Command("go", "build", "-o", output, target.path)
		cmd.Env = append(os.Environ(), "CGO_ENABLED=0")

		if out, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("构建 %s 失败: %v\n输出: %s", target.name, err, string(out))
		}

		if info, err := os.Stat(output); err == nil {
			fmt.Printf("   ✅ %s: %d MB\n", target.name, info.Size()/1024/1024)
		}
	}

	fmt.Println("🎉 所有组件构建完成!")
	return nil
}

// Test 运行所有测试，包括定时任务集成测试
func Test() error {
	fmt.Println("🧪 运行全部测试...")
	return sh.RunV("go", "test", "./...", "-timeout=5m")
}

// TestUnit 运行单元测试，跳过依赖真实时间的集成测试
func TestUnit() error {
	fmt.Println("🧪 运行单元测试...")
	return sh.RunV("go", "test", "-short", "./...", "-timeout=5m")
}

// TestRace 以竞态检测运行测试
func TestRace() error {
	fmt.Println("🏁 运行竞态检测...")
	cmd := exec.Command("go", "test", "-race", "-short", "./...", "-timeout=10m")
	cmd.Env = append(os.Environ(), "CGO_ENABLED=1")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// Bench 运行基准测试，结果写入 reports/benchmark.txt
func Bench() error {
	fmt.Println("📊 运行性能基准测试...")

	if err := os.MkdirAll(reportDir, 0755); err != nil {
		return fmt.Errorf("创建报告目录失败: %v", err)
	}

	outputFile, err := os.Create(filepath.Join(reportDir, "benchmark.txt"))
	if err != nil {
		return fmt.Errorf("创建基准测试报告失败: %v", err)
	}
	defer outputFile.Close()

	cmd := exec.Command("go", "test", "./pkg/cache", "-bench=.", "-benchmem", "-run=^$", "-timeout=15m")
	cmd.Stdout = outputFile
	cmd.Stderr = outputFile

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("基准测试失败: %v", err)
	}

	fmt.Println("✅ 基准测试完成! 报告保存到 " + filepath.Join(reportDir, "benchmark.txt"))
	return nil
}

// Workload 用 cachebench 对比全部淘汰策略
func Workload() error {
	return sh.RunV("go", "run", "./cmd/cachebench", "-policies=all", "-format=text")
}

type Docker mg.Namespace

// Influx 启动本地 InfluxDB，供 cacheserver 的统计导出使用
func (Docker) Influx() error {
	fmt.Println("🚀 启动 InfluxDB...")
	return sh.RunV("docker", "run", "-d", "--name", "cachecore-influxdb", "-p", "8086:8086",
		"-e", "DOCKER_INFLUXDB_INIT_MODE=setup",
		"-e", "DOCKER_INFLUXDB_INIT_USERNAME=cachecore",
		"-e", "DOCKER_INFLUXDB_INIT_PASSWORD=cachecore-dev",
		"-e", "DOCKER_INFLUXDB_INIT_ORG=cachecore",
		"-e", "DOCKER_INFLUXDB_INIT_BUCKET=caches",
		"-e", "DOCKER_INFLUXDB_INIT_ADMIN_TOKEN=cachecore-dev-token",
		"influxdb:2.7")
}

// Down 停止并删除本地 InfluxDB
func (Docker) Down() error {
	fmt.Println("🛑 停止 InfluxDB...")
	return sh.RunV("docker", "rm", "-f", "cachecore-influxdb")
}

// Clean 清理构建产物
func Clean() error {
	fmt.Println("🧹 清理构建产物...")

	if err := os.MkdirAll("./dist", 0755); err != nil {
		return fmt.Errorf("创建 dist 目录失败: %v", err)
	}

	files, err := filepath.Glob("./dist/*")
	if err != nil {
		return fmt.Errorf("查找文件失败: %v", err)
	}
	for _, file := range files {
		if err := os.Remove(file); err != nil {
			fmt.Printf("警告: 无法删除文件 %s: %v\n", file, err)
		}
	}

	if err := os.RemoveAll(reportDir); err != nil {
		fmt.Printf("警告: 清理报告目录失败: %v\n", err)
	}

	fmt.Println("✅ 清理完成!")
	return nil
}

// Lint 检查格式并运行 go vet
func Lint() error {
	fmt.Println("🔍 运行代码检查...")

	output, err := exec.Command("gofmt", "-l", ".").CombinedOutput()
	if err != nil {
		return fmt.Errorf("gofmt 检查失败: %v", err)
	}
	if len(output) > 0 {
		fmt.Printf("以下文件格式不正确:\n%s\n", string(output))
		return fmt.Errorf("请先运行 gofmt -w")
	}

	if err := sh.RunV("go", "vet", "./..."); err != nil {
		return fmt.Errorf("go vet 失败: %v", err)
	}

	fmt.Println("✅ 代码检查通过!")
	return nil
}

// Coverage 生成测试覆盖率报告
func Coverage() error {
	fmt.Println("📈 生成测试覆盖率报告...")

	if err := os.MkdirAll(reportDir, 0755); err != nil {
		return fmt.Errorf("创建报告目录失败: %v", err)
	}

	profile := filepath.Join(reportDir, "coverage.out")
	html := filepath.Join(reportDir, "coverage.html")

	cmd := exec.Command("go", "test", "-short", "./pkg/...", "-coverprofile="+profile, "-covermode=atomic")
	if output, err := cmd.CombinedOutput(); err != nil {
		fmt.Printf("测试输出:\n%s\n", string(output))
		return fmt.Errorf("生成覆盖率失败: %v", err)
	}

	if err := sh.Run("go", "tool", "cover", "-html="+profile, "-o", html); err != nil {
		return fmt.Errorf("生成HTML报告失败: %v", err)
	}
	if err := sh.RunV("go", "tool", "cover", "-func="+profile); err != nil {
		return fmt.Errorf("显示覆盖率失败: %v", err)
	}

	fmt.Println("✅ 覆盖率报告生成完成!")
	fmt.Println("   详细报告: file://" + getAbsolutePath(html))
	return nil
}

func getAbsolutePath(relativePath string) string {
	absPath, err := filepath.Abs(relativePath)
	if err != nil {
		return relativePath
	}
	return absPath
}
