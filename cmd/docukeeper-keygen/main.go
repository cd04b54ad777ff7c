// Утилита генерации RSA-ключей подписи DocuKeeper.
// Пишет private.pem (PKCS#8, права 0600) и public.pem (PKIX) в указанную директорию.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/bigkaa/docukeeper/internal/config"
	"github.com/bigkaa/docukeeper/internal/signing"
)

const (
	privateKeyFile = "private.pem"
	publicKeyFile  = "public.pem"
)

func main() {
	if err := newRootCommand(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand(out io.Writer) *cobra.Command {
	var (
		bits      int
		outDir    string
		overwrite bool
	)

	cmd := &cobra.Command{
		Use:           "docukeeper-keygen",
		Short:         "Генерация RSA-ключей подписи DocuKeeper",
		Long:          "Генерирует пару RSA-ключей для подписи отпечатков документов.\nПуть к private.pem передаётся сервису через DK_SIGNING_PRIVATE_KEY_FILE.",
		Version:       config.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return generate(out, bits, outDir, overwrite)
		},
	}

	cmd.Flags().IntVar(&bits, "bits", signing.MinKeyBits, fmt.Sprintf("размер ключа в битах (не меньше %d)", signing.MinKeyBits))
	cmd.Flags().StringVar(&outDir, "out-dir", ".", "директория для private.pem и public.pem")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "перезаписать существующие файлы")

	return cmd
}

// generate создаёт ключи и записывает их в outDir.
func generate(out io.Writer, bits int, outDir string, overwrite bool) error {
	privPath := filepath.Join(outDir, privateKeyFile)
	pubPath := filepath.Join(outDir, publicKeyFile)

	if !overwrite {
		for _, p := range []string{privPath, pubPath} {
			if _, err := os.Stat(p); err == nil {
				return fmt.Errorf("файл %s уже существует (используйте --overwrite)", p)
			} else if !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("проверка %s: %w", p, err)
			}
		}
	}

	privPEM, pubPEM, err := signing.GenerateKeyPair(bits)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return fmt.Errorf("создание директории %s: %w", outDir, err)
	}
	if err := os.WriteFile(privPath, privPEM, 0o600); err != nil {
		return fmt.Errorf("запись %s: %w", privPath, err)
	}
	if err := os.WriteFile(pubPath, pubPEM, 0o644); err != nil { //nolint:gosec // открытый ключ
		return fmt.Errorf("запись %s: %w", pubPath, err)
	}

	fmt.Fprintf(out, "Закрытый ключ: %s\nОткрытый ключ: %s\n", privPath, pubPath)
	return nil
}
