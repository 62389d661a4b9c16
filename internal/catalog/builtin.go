package catalog

// builtinDescriptors defines the backends solo knows how to launch out
// of the box. Image tables carry an entry per GPU vendor plus the cpu
// fallback; entries can be overridden per machine via images.yaml.
func builtinDescriptors() []*ServerDescriptor {
	return []*ServerDescriptor{
		{
			ID:            "ollama",
			DefaultModel:  "llama3.2:1b",
			DefaultPort:   11434,
			ContainerPort: 11434,
			ContainerName: "solo-ollama",
			HealthPath:    "/",
			ImageByVendor: map[string]string{
				"nvidia":    "ollama/ollama",
				"amd":       "ollama/ollama:rocm",
				"apple":     "ollama/ollama",
				ImageCPUKey: "ollama/ollama",
			},
			RequiredDevices: []DeviceClass{DeviceGPU},
			Mounts: []Mount{
				{Kind: MountVolume, Source: "ollama", Target: "/root/.ollama"},
			},
		},
		{
			ID:            "vllm",
			DefaultModel:  "meta-llama/Llama-3.2-1B-Instruct",
			DefaultPort:   8000,
			ContainerPort: 8000,
			ContainerName: "solo-vllm",
			HealthPath:    "/health",
			ImageByVendor: map[string]string{
				"nvidia":    "vllm/vllm-openai:latest",
				"amd":       "rocm/vllm",
				"apple":     "getsolo/vllm-arm",
				ImageCPUKey: "getsolo/vllm-cpu",
			},
			RequiredDevices: []DeviceClass{DeviceGPU},
			CommandTemplate: []string{"--model", "{model}", "--max-model-len", "4096"},
			PassthroughEnv:  []string{"HUGGING_FACE_HUB_TOKEN"},
			Mounts: []Mount{
				{Kind: MountBind, Source: "~/.cache/huggingface", Target: "/root/.cache/huggingface"},
			},
		},
		{
			ID:            "llamacpp",
			DefaultModel:  "HuggingFaceTB/SmolLM2-1.7B-Instruct",
			DefaultPort:   8080,
			ContainerPort: 8080,
			ContainerName: "solo-llamacpp",
			HealthPath:    "/health",
			ImageByVendor: map[string]string{
				"nvidia":    "ghcr.io/ggml-org/llama.cpp:server-cuda",
				"amd":       "ghcr.io/ggml-org/llama.cpp:server",
				"apple":     "ghcr.io/ggml-org/llama.cpp:server",
				ImageCPUKey: "ghcr.io/ggml-org/llama.cpp:server",
			},
			RequiredDevices: []DeviceClass{DeviceGPU},
			CommandTemplate: []string{"-hf", "{model}", "--host", "0.0.0.0", "--port", "8080"},
			Mounts: []Mount{
				{Kind: MountBind, Source: "~/.cache/llama.cpp", Target: "/root/.cache/llama.cpp"},
			},
		},
		{
			ID:            "lerobot",
			DefaultModel:  "local:so101",
			DefaultPort:   5070,
			ContainerPort: 5070,
			ContainerName: "solo-lerobot",
			HealthPath:    "/health",
			ImageByVendor: map[string]string{
				"nvidia":    "getsolo/lerobot:cuda",
				"amd":       "getsolo/lerobot",
				"apple":     "getsolo/lerobot",
				ImageCPUKey: "getsolo/lerobot",
			},
			RequiredDevices: []DeviceClass{DeviceSerial, DeviceVideo},
			EnvTemplate: map[string]string{
				"LEROBOT_MODEL": "{model}",
			},
		},
	}
}
