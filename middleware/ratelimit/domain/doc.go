// Package domain define contratos e tipos de domínio para o controle de admissão.
//
// Este pacote não depende de net/http nem de implementações concretas.
// A intenção é permitir testes de unidade puros e desacoplar regras de negócio
// (quotas, decisões, classes de rota) de detalhes de infraestrutura como Redis.
package domain
